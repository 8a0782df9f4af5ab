package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/xraph/licensor/provider/stripe"
)

type verifiedEvent struct {
	ID      string `json:"id" yaml:"id"`
	Type    string `json:"type" yaml:"type"`
	Decoded any    `json:"decoded,omitempty" yaml:"decoded,omitempty"`
}

func newWebhookCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webhook",
		Short: "Work with Stripe webhook deliveries",
	}
	cmd.AddCommand(newWebhookVerifyCmd(root))
	return cmd
}

func newWebhookVerifyCmd(root *rootOptions) *cobra.Command {
	var (
		secret    string
		signature string
		payload   string
	)

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify a delivery's signature and show the decoded billing event",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				secret = os.Getenv(EnvWebhookSecret)
			}
			if signature == "" {
				return errors.New("--signature is required")
			}

			body, err := readInput(cmd.InOrStdin(), payload)
			if err != nil {
				return fmt.Errorf("read payload: %w", err)
			}

			event, err := stripe.Verify(body, signature, secret)
			if err != nil {
				return err
			}

			out := verifiedEvent{ID: event.ID, Type: string(event.Type)}
			switch out.Type {
			case stripe.EventCheckoutCompleted:
				if out.Decoded, err = stripe.DecodeCheckout(event); err != nil {
					return err
				}
			case stripe.EventSubscriptionUpdated, stripe.EventSubscriptionDeleted:
				if out.Decoded, err = stripe.DecodeSubscription(event); err != nil {
					return err
				}
			}

			return render(cmd.OutOrStdout(), root.output, out, func(w io.Writer) {
				fmt.Fprintln(w, "signature\tvalid")
				fmt.Fprintf(w, "event\t%s\n", out.ID)
				fmt.Fprintf(w, "type\t%s\n", out.Type)
				if out.Decoded == nil {
					fmt.Fprintln(w, "handled\tno")
					return
				}
				fmt.Fprintln(w, "handled\tyes")
				fmt.Fprintf(w, "decoded\t%+v\n", out.Decoded)
			})
		},
	}

	cmd.Flags().StringVar(&secret, "secret", "", "webhook signing secret (default $"+EnvWebhookSecret+")")
	cmd.Flags().StringVar(&signature, "signature", "", "value of the Stripe-Signature header")
	cmd.Flags().StringVar(&payload, "payload", "-", "file holding the raw request body, - for stdin")
	return cmd
}
