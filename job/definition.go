package job

import (
	"net/http"
	"strings"
)

const (
	// DefaultURL is used when a definition leaves the URL empty.
	DefaultURL = "http://localhost"
	// DefaultSuccessStatus is the status code a request must return by default.
	DefaultSuccessStatus = http.StatusOK
)

// Definition describes one job. Values are immutable once loaded into a Registry.
type Definition struct {
	Name   string
	Method string
	URL    string
	// QueryKeys lists payload keys copied into the query string, in order.
	QueryKeys []string
	// BodyKeys lists payload keys copied into the JSON body, in order.
	BodyKeys []string
	// RequiredKeys must all be present in a payload for it to match the job.
	RequiredKeys []string
	// LogSuffix is the log category of the job. Defaults to Name.
	LogSuffix string
	// SuccessStatus is the only status code treated as success.
	SuccessStatus int

	// OnStart, OnSuccess and OnFail name callback jobs; empty means unbound.
	OnStart   string
	OnSuccess string
	OnFail    string
}

// RequestMethod returns the uppercased HTTP method, GET when empty.
func (d Definition) RequestMethod() string {
	if d.Method == "" {
		return http.MethodGet
	}

	return strings.ToUpper(d.Method)
}

// BaseURL returns the request URL without query string, DefaultURL when empty.
func (d Definition) BaseURL() string {
	if d.URL == "" {
		return DefaultURL
	}

	return d.URL
}

// Callbacks returns the bound callback slots in execution order.
func (d Definition) Callbacks() []Callback {
	out := make([]Callback, 0, 3)
	if d.OnStart != "" {
		out = append(out, Callback{Slot: SlotOnStart, Name: d.OnStart})
	}
	if d.OnSuccess != "" {
		out = append(out, Callback{Slot: SlotOnSuccess, Name: d.OnSuccess})
	}
	if d.OnFail != "" {
		out = append(out, Callback{Slot: SlotOnFail, Name: d.OnFail})
	}

	return out
}

func (d Definition) withDefaults() Definition {
	if d.LogSuffix == "" {
		d.LogSuffix = d.Name
	}
	if d.SuccessStatus == 0 {
		d.SuccessStatus = DefaultSuccessStatus
	}
	d.QueryKeys = uniqueKeys(d.QueryKeys)
	d.BodyKeys = uniqueKeys(d.BodyKeys)
	d.RequiredKeys = uniqueKeys(d.RequiredKeys)

	return d
}

// Slot names a callback position of a job.
type Slot string

const (
	SlotOnStart   Slot = "on_start"
	SlotOnSuccess Slot = "on_success"
	SlotOnFail    Slot = "on_fail"
)

// Callback is a bound callback slot.
type Callback struct {
	Slot Slot
	Name string
}

// Resolved is a definition with every bound callback materialized.
// A nil callback field means the slot is unbound.
type Resolved struct {
	Definition

	Start   *Resolved
	Success *Resolved
	Fail    *Resolved
}

// Size returns the number of jobs in the resolved tree, including r.
func (r *Resolved) Size() int {
	if r == nil {
		return 0
	}

	return 1 + r.Start.Size() + r.Success.Size() + r.Fail.Size()
}

func uniqueKeys(keys []string) []string {
	if len(keys) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}

	return out
}
