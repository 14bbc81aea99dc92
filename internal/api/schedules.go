package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"contentexpiry/internal/domain"
	"contentexpiry/internal/store"
)

const maxPerPage = 100

type scheduleResp struct {
	ID           int64   `json:"id"`
	PostID       int64   `json:"post_id"`
	ExpiryDate   string  `json:"expiry_date"`
	ExpiryAction string  `json:"expiry_action"`
	RedirectURL  *string `json:"redirect_url"`
	NewStatus    *string `json:"new_status"`
	IsProcessed  bool    `json:"is_processed"`
	CreatedAt    string  `json:"created_at"`
	UpdatedAt    string  `json:"updated_at"`
}

type scheduleRowResp struct {
	scheduleResp
	PostTitle  string `json:"post_title"`
	PostType   string `json:"post_type"`
	PostStatus string `json:"post_status"`
}

func toResp(sc domain.Schedule) scheduleResp {
	return scheduleResp{
		ID:           sc.ID,
		PostID:       sc.ContentID,
		ExpiryDate:   domain.FormatDate(sc.DueAt),
		ExpiryAction: string(sc.Action),
		RedirectURL:  sc.RedirectTarget,
		NewStatus:    sc.TargetStatus,
		IsProcessed:  sc.Processed,
		CreatedAt:    domain.FormatDate(sc.CreatedAt),
		UpdatedAt:    domain.FormatDate(sc.UpdatedAt),
	}
}

func (s *Server) listSchedules(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := domain.ListFilter{ContentType: q.Get("post_type")}
	switch q.Get("status") {
	case "0":
		v := false
		f.Processed = &v
	case "1":
		v := true
		f.Processed = &v
	}
	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	if perPage < 1 {
		perPage = store.DefaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}

	rows, err := s.Repo.List(r.Context(), f, page, perPage)
	if err != nil {
		s.writeError(w, err)
		return
	}
	total, err := s.Repo.Count(r.Context(), f)
	if err != nil {
		s.writeError(w, err)
		return
	}

	out := make([]scheduleRowResp, 0, len(rows))
	for _, row := range rows {
		out = append(out, scheduleRowResp{
			scheduleResp: toResp(row.Schedule),
			PostTitle:    row.ContentTitle,
			PostType:     row.ContentType,
			PostStatus:   row.ContentStatus,
		})
	}
	w.Header().Set("X-Total-Count", strconv.Itoa(total))
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) createSchedule(w http.ResponseWriter, r *http.Request) {
	var in domain.ScheduleInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		s.writeError(w, domain.NewValidationError("Invalid JSON body."))
		return
	}
	id, err := s.Repo.Create(r.Context(), in)
	if err != nil {
		s.writeError(w, err)
		return
	}
	sc, err := s.Repo.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if sc == nil {
		s.writeError(w, &domain.NotFoundError{Resource: "schedule", ID: id})
		return
	}
	writeJSON(w, http.StatusCreated, toResp(*sc))
}

func (s *Server) getSchedule(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		notFound(w, domain.CodeNotFound)
		return
	}
	sc, err := s.Repo.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if sc == nil {
		notFound(w, domain.CodeNotFound)
		return
	}
	writeJSON(w, http.StatusOK, toResp(*sc))
}

// scheduleByPost returns the active schedule for a content item, or {} when none.
func (s *Server) scheduleByPost(w http.ResponseWriter, r *http.Request) {
	postID, ok := idParam(r, "post_id")
	if !ok {
		writeJSON(w, http.StatusOK, struct{}{})
		return
	}
	sc, err := s.Repo.GetActiveForContent(r.Context(), postID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if sc == nil {
		writeJSON(w, http.StatusOK, struct{}{})
		return
	}
	writeJSON(w, http.StatusOK, toResp(*sc))
}

func (s *Server) updateSchedule(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		notFound(w, domain.CodeScheduleNotFound)
		return
	}
	var in domain.ScheduleInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		s.writeError(w, domain.NewValidationError("Invalid JSON body."))
		return
	}
	if err := s.Repo.Update(r.Context(), id, in); err != nil {
		s.writeError(w, err)
		return
	}
	sc, err := s.Repo.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if sc == nil {
		s.writeError(w, &domain.NotFoundError{Resource: "schedule", ID: id})
		return
	}
	writeJSON(w, http.StatusOK, toResp(*sc))
}

func (s *Server) deleteSchedule(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		notFound(w, domain.CodeNotFound)
		return
	}
	if err := s.Repo.Delete(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}
