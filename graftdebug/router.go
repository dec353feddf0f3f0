// Package graftdebug exposes a container's bindings, dependency graph and
// validation report over HTTP for diagnostics.
package graftdebug

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/xraph/graft"
)

// Binding is the JSON form of graft.BindingInfo.
type Binding struct {
	Contract    string `json:"contract"`
	Identifier  string `json:"identifier,omitempty"`
	Scope       string `json:"scope"`
	To          string `json:"to"`
	Concrete    string `json:"concrete,omitempty"`
	Provider    string `json:"provider"`
	Conditional bool   `json:"conditional,omitempty"`
	NonLazy     bool   `json:"nonLazy,omitempty"`
}

// Edge is one dependency in a Graph.
type Edge struct {
	From       string `json:"from"`
	To         string `json:"to"`
	Kind       string `json:"kind"`
	Identifier string `json:"identifier,omitempty"`
	Optional   bool   `json:"optional,omitempty"`
}

// Graph is the JSON form of graft.DependencyGraph. Order is the eager
// construction order, empty when the graph has a constructor cycle.
type Graph struct {
	Nodes []string `json:"nodes"`
	Edges []Edge   `json:"edges"`
	Order []string `json:"order,omitempty"`
	Error string   `json:"error,omitempty"`
}

// Report is the result of validating the container.
type Report struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

type handler struct {
	container *graft.Container
	logger    *zap.Logger
}

// NewRouter returns a router serving diagnostics for c:
//
//	GET /bindings             every binding, ?scope= filters by scope name
//	GET /bindings/{contract}  bindings of one contract, by type name
//	GET /graph                dependency graph and construction order
//	GET /validate             validation report, 200 when valid and 409 otherwise
func NewRouter(c *graft.Container) chi.Router {
	h := &handler{container: c, logger: c.Logger()}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/bindings", h.bindings)
	r.Get("/bindings/{contract}", h.bindings)
	r.Get("/graph", h.graph)
	r.Get("/validate", h.validate)

	return r
}

func (h *handler) bindings(w http.ResponseWriter, r *http.Request) {
	contract := chi.URLParam(r, "contract")
	scope := r.URL.Query().Get("scope")

	out := make([]Binding, 0)

	for _, info := range h.container.Bindings() {
		b := toBinding(info)

		if contract != "" && b.Contract != contract {
			continue
		}

		if scope != "" && b.Scope != scope {
			continue
		}

		out = append(out, b)
	}

	if contract != "" && len(out) == 0 {
		h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "no bindings for " + contract})

		return
	}

	h.writeJSON(w, http.StatusOK, out)
}

func (h *handler) graph(w http.ResponseWriter, _ *http.Request) {
	g, err := graft.BuildGraph(h.container)
	if err != nil {
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})

		return
	}

	out := Graph{Nodes: make([]string, 0), Edges: make([]Edge, 0)}

	for _, contract := range g.Nodes() {
		out.Nodes = append(out.Nodes, contract.String())

		for _, e := range g.Dependencies(contract) {
			out.Edges = append(out.Edges, Edge{
				From:       contract.String(),
				To:         e.Contract.String(),
				Kind:       e.Kind.String(),
				Identifier: identifier(e.Identifier),
				Optional:   e.Optional,
			})
		}
	}

	order, err := g.TopologicalSortEagerOnly()
	if err != nil {
		out.Error = err.Error()
	}

	for _, contract := range order {
		out.Order = append(out.Order, contract.String())
	}

	h.writeJSON(w, http.StatusOK, out)
}

func (h *handler) validate(w http.ResponseWriter, _ *http.Request) {
	errs := multierr.Errors(h.container.Validate())

	report := Report{Valid: len(errs) == 0}
	for _, err := range errs {
		report.Errors = append(report.Errors, err.Error())
	}

	status := http.StatusOK
	if !report.Valid {
		status = http.StatusConflict
	}

	h.writeJSON(w, status, report)
}

func (h *handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("graftdebug: write response", zap.Error(err))
	}
}

func toBinding(info graft.BindingInfo) Binding {
	b := Binding{
		Contract:    info.Contract.String(),
		Identifier:  identifier(info.Identifier),
		Scope:       info.Scope.String(),
		To:          info.ToChoice.String(),
		Provider:    info.Provider,
		Conditional: info.Conditional,
		NonLazy:     info.NonLazy,
	}

	if info.ConcreteType != nil {
		b.Concrete = info.ConcreteType.String()
	}

	return b
}

func identifier(id any) string {
	if id == nil {
		return ""
	}

	return fmt.Sprint(id)
}
