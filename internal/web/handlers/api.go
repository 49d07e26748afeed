package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/spend-intake/internal/cluster"
	"github.com/spend-intake/internal/debug"
	"github.com/spend-intake/internal/hierarchy"
)

// APIHandler serves the read-only supplier API.
type APIHandler struct {
	Source Source
	Order  hierarchy.Order
	Logger *zap.Logger
}

// SupplierJSON is one record in API responses.
type SupplierJSON struct {
	Index         int     `json:"index"`
	Name          string  `json:"name"`
	Spend         float64 `json:"spend"`
	OriginalOrder int     `json:"original_order"`
}

// GroupJSON is one group in API responses.
type GroupJSON struct {
	Representative SupplierJSON   `json:"representative"`
	Members        []SupplierJSON `json:"members"`
	Size           int            `json:"size"`
	TotalSpend     float64        `json:"total_spend"`
}

// GroupsResponse is the body of GET /api/groups.
type GroupsResponse struct {
	Order  hierarchy.Order `json:"order"`
	Count  int             `json:"count"`
	Groups []GroupJSON     `json:"groups"`
}

// SuppliersResponse is the body of GET /api/suppliers.
type SuppliersResponse struct {
	Total     int                `json:"total"`
	Offset    int                `json:"offset"`
	Suppliers []SupplierListItem `json:"suppliers"`
}

// SupplierListItem adds the owning representative to a record.
type SupplierListItem struct {
	SupplierJSON
	Representative int  `json:"representative"`
	IsParent       bool `json:"is_parent"`
}

// LookupResponse is the body of GET /api/lookup.
type LookupResponse struct {
	Query       string    `json:"query"`
	Index       int       `json:"index"`
	Ambiguous   bool      `json:"ambiguous"`
	Occurrences []int     `json:"occurrences"`
	Group       GroupJSON `json:"group"`
}

// StatsResponse is the body of GET /api/stats.
type StatsResponse struct {
	Suppliers       int       `json:"suppliers"`
	Groups          int       `json:"groups"`
	MergedGroups    int       `json:"merged_groups"`
	Singletons      int       `json:"singletons"`
	LargestGroup    int       `json:"largest_group"`
	TotalSpend      float64   `json:"total_spend"`
	ScoringFailures int       `json:"scoring_failures"`
	DuplicateNames  int       `json:"duplicate_names"`
	BuiltAt         time.Time `json:"built_at"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ListGroups returns every group, parents sorted by the requested order.
func (h *APIHandler) ListGroups(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.snapshot(w, r)
	if !ok {
		return
	}

	order := h.Order
	if q := r.URL.Query().Get("order"); q != "" {
		parsed, err := hierarchy.ParseOrder(q)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		order = parsed
	}
	if order == "" {
		order = hierarchy.OrderSpend
	}

	sorted := hierarchy.Sort(snap.Groups, snap.Records, order)
	resp := GroupsResponse{Order: order, Count: len(sorted), Groups: make([]GroupJSON, len(sorted))}
	for i, g := range sorted {
		resp.Groups[i] = groupJSON(g, snap.Records)
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// ListSuppliers returns records in input order, paginated by offset and
// limit.
func (h *APIHandler) ListSuppliers(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.snapshot(w, r)
	if !ok {
		return
	}

	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		h.writeError(w, http.StatusBadRequest, "invalid offset")
		return
	}
	limit, err := queryInt(r, "limit", 100)
	if err != nil || limit < 1 || limit > 1000 {
		h.writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}

	end := offset + limit
	if end > len(snap.Records) {
		end = len(snap.Records)
	}
	resp := SuppliersResponse{Total: len(snap.Records), Offset: offset, Suppliers: []SupplierListItem{}}
	for idx := offset; idx < end; idx++ {
		pos, _ := snap.GroupOf(idx)
		rep := snap.Groups[pos].Representative
		resp.Suppliers = append(resp.Suppliers, SupplierListItem{
			SupplierJSON:   supplierJSON(idx, snap.Records),
			Representative: rep,
			IsParent:       rep == idx,
		})
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// Lookup resolves an exact supplier name to its record and group.
func (h *APIHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		h.writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	snap, ok := h.snapshot(w, r)
	if !ok {
		return
	}

	idx, found := snap.Names.Resolve(name)
	if !found {
		h.writeError(w, http.StatusNotFound, "supplier not found")
		return
	}
	occurrences := snap.Names.All(name)
	pos, _ := snap.GroupOf(idx)

	h.writeJSON(w, http.StatusOK, LookupResponse{
		Query:       name,
		Index:       idx,
		Ambiguous:   len(occurrences) > 1,
		Occurrences: occurrences,
		Group:       groupJSON(snap.Groups[pos], snap.Records),
	})
}

// GetStats summarises the current snapshot.
func (h *APIHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.snapshot(w, r)
	if !ok {
		return
	}

	stats := StatsResponse{
		Suppliers:       len(snap.Records),
		Groups:          len(snap.Groups),
		ScoringFailures: snap.Failures,
		DuplicateNames:  len(snap.Names.Duplicates()),
		BuiltAt:         snap.BuiltAt,
	}
	for _, g := range snap.Groups {
		if g.Size() > 1 {
			stats.MergedGroups++
		} else {
			stats.Singletons++
		}
		if g.Size() > stats.LargestGroup {
			stats.LargestGroup = g.Size()
		}
		stats.TotalSpend += g.TotalSpend
	}
	h.writeJSON(w, http.StatusOK, stats)
}

// Health reports liveness.
func (h *APIHandler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *APIHandler) snapshot(w http.ResponseWriter, r *http.Request) (*Snapshot, bool) {
	snap, err := h.Source.Snapshot(r.Context())
	if errors.Is(err, ErrNoData) {
		h.writeError(w, http.StatusServiceUnavailable, err.Error())
		return nil, false
	}
	if err != nil {
		debug.OrNop(h.Logger).Error("Failed to load snapshot", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to load supplier data")
		return nil, false
	}
	return snap, true
}

func (h *APIHandler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		debug.OrNop(h.Logger).Warn("Failed to write response", zap.Error(err))
	}
}

func (h *APIHandler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, ErrorResponse{Error: msg})
}

func supplierJSON(idx int, records []cluster.Record) SupplierJSON {
	rec := records[idx]
	return SupplierJSON{Index: idx, Name: rec.Name, Spend: rec.Spend, OriginalOrder: rec.OriginalOrder}
}

func groupJSON(g cluster.Group, records []cluster.Record) GroupJSON {
	out := GroupJSON{
		Representative: supplierJSON(g.Representative, records),
		Members:        make([]SupplierJSON, len(g.Members)),
		Size:           g.Size(),
		TotalSpend:     g.TotalSpend,
	}
	for i, idx := range g.Members {
		out.Members[i] = supplierJSON(idx, records)
	}
	return out
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}
