package plan

// Limits maps each plan of a service to its token limit.
type Limits map[Plan]int64

// Table maps (service, plan) to a token limit.
//
// Lookups never fail: a plan missing from a service falls back to that
// service's free tier, and an unknown service falls back to the table's
// default service.
type Table struct {
	services       map[Service]Limits
	defaultService Service
}

// DefaultLimits returns the built-in limits.
func DefaultLimits() map[Service]Limits {
	return map[Service]Limits{
		ServiceAltText: {Free: 50, Pro: 1000, Agency: 10000},
		ServiceSEOMeta: {Free: 10, Pro: 100, Agency: 1000},
	}
}

// NewTable builds a table from limits. A nil map yields the built-in limits.
func NewTable(limits map[Service]Limits, defaultService Service) *Table {
	if limits == nil {
		limits = DefaultLimits()
	}
	if defaultService == "" {
		defaultService = DefaultService
	}

	services := make(map[Service]Limits, len(limits))
	for svc, l := range limits {
		cp := make(Limits, len(l))
		for p, n := range l {
			cp[p] = n
		}
		services[svc] = cp
	}

	return &Table{services: services, defaultService: defaultService}
}

// DefaultTable returns a table with the built-in limits.
func DefaultTable() *Table {
	return NewTable(nil, DefaultService)
}

// DefaultService returns the service used for unknown or empty service names.
func (t *Table) DefaultService() Service {
	return t.defaultService
}

// Resolve returns the service the table will use for svc.
func (t *Table) Resolve(svc Service) Service {
	if _, ok := t.services[svc]; ok {
		return svc
	}
	return t.defaultService
}

// Has reports whether svc has its own limits.
func (t *Table) Has(svc Service) bool {
	_, ok := t.services[svc]
	return ok
}

// TokenLimit returns the token limit for (svc, p).
func (t *Table) TokenLimit(svc Service, p Plan) int64 {
	limits := t.services[t.Resolve(svc)]
	if n, ok := limits[p]; ok {
		return n
	}
	return limits[Free]
}
