package main

import (
	"mime"
	"net/http"
	"strings"

	"ai-mistake-tracker/pkg/apperr"
	"ai-mistake-tracker/pkg/middleware"
	"ai-mistake-tracker/pkg/mistake"
	"ai-mistake-tracker/pkg/models"
	"ai-mistake-tracker/pkg/response"
	"ai-mistake-tracker/pkg/storage"
	"ai-mistake-tracker/pkg/store"

	"go.uber.org/zap"
)

func (s *server) submitReport(w http.ResponseWriter, r *http.Request) {
	var input models.ReportInput
	if err := decodeJSON(r, &input); err != nil {
		s.fail(w, r, "Invalid request payload", err)
		return
	}

	ctx, cancel := withTimeout(r)
	defer cancel()

	report, err := s.svc.Submit(ctx, middleware.PrincipalFrom(r.Context()), input)
	if err != nil {
		s.fail(w, r, "Failed to submit report", err)
		return
	}
	middleware.RecordSubmission(report.AITool)
	response.Success(w, http.StatusCreated, "Mistake report submitted successfully", report)
}

func (s *server) listReports(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := queryInt(r, "page")
	if err != nil {
		s.fail(w, r, "Invalid query", err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.fail(w, r, "Invalid query", err)
		return
	}

	ctx, cancel := withTimeout(r)
	defer cancel()

	result, err := s.svc.List(ctx, middleware.PrincipalFrom(r.Context()), mistake.ListQuery{
		AITool:   q.Get("aiTool"),
		Category: models.Category(q.Get("category")),
		Severity: models.Severity(q.Get("severity")),
		Status:   models.Status(q.Get("status")),
		Sort:     store.ReportSort(q.Get("sortBy")),
		Page:     page,
		Limit:    limit,
	})
	if err != nil {
		s.fail(w, r, "Failed to fetch reports", err)
		return
	}
	response.Success(w, http.StatusOK, "Reports fetched successfully", result)
}

func (s *server) trendingReports(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.fail(w, r, "Invalid query", err)
		return
	}

	ctx, cancel := withTimeout(r)
	defer cancel()

	reports, err := s.svc.Trending(ctx, middleware.PrincipalFrom(r.Context()), limit)
	if err != nil {
		s.fail(w, r, "Failed to fetch trending reports", err)
		return
	}
	response.Success(w, http.StatusOK, "Trending reports fetched successfully", reports)
}

func (s *server) myReports(w http.ResponseWriter, r *http.Request) {
	status := models.Status(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		s.fail(w, r, "Invalid query", apperr.InvalidArgument("invalid status filter %q", status))
		return
	}

	ctx, cancel := withTimeout(r)
	defer cancel()

	reports, err := s.svc.Mine(ctx, middleware.PrincipalFrom(r.Context()), status)
	if err != nil {
		s.fail(w, r, "Failed to fetch reports", err)
		return
	}
	response.Success(w, http.StatusOK, "Reports fetched successfully", reports)
}

func (s *server) reportsByTool(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.fail(w, r, "Invalid query", err)
		return
	}
	tool := r.URL.Query().Get("tool")
	if tool == "" {
		s.fail(w, r, "Invalid query", apperr.InvalidArgument("tool is required"))
		return
	}

	ctx, cancel := withTimeout(r)
	defer cancel()

	reports, err := s.svc.ByAITool(ctx, middleware.PrincipalFrom(r.Context()), tool, limit)
	if err != nil {
		s.fail(w, r, "Failed to fetch reports", err)
		return
	}
	response.Success(w, http.StatusOK, "Reports fetched successfully", reports)
}

func (s *server) reportsByCategory(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.fail(w, r, "Invalid query", err)
		return
	}

	ctx, cancel := withTimeout(r)
	defer cancel()

	category := models.Category(r.URL.Query().Get("category"))
	reports, err := s.svc.ByCategory(ctx, middleware.PrincipalFrom(r.Context()), category, limit)
	if err != nil {
		s.fail(w, r, "Failed to fetch reports", err)
		return
	}
	response.Success(w, http.StatusOK, "Reports fetched successfully", reports)
}

func (s *server) getReport(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r)
	defer cancel()

	report, err := s.svc.Get(ctx, middleware.PrincipalFrom(r.Context()), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, "Report not found", err)
		return
	}
	response.Success(w, http.StatusOK, "Report fetched successfully", report)
}

func (s *server) shareReport(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r)
	defer cancel()

	report, err := s.svc.Share(ctx, r.PathValue("id"))
	if err != nil {
		s.fail(w, r, "Failed to share report", err)
		return
	}
	response.Success(w, http.StatusOK, "Report shared", map[string]int64{"shares": report.Shares})
}

type voteResult struct {
	Upvotes    int                  `json:"upvotes"`
	Downvotes  int                  `json:"downvotes"`
	TotalVotes int                  `json:"totalVotes"`
	VoteScore  int                  `json:"voteScore"`
	UserVote   models.VoteDirection `json:"userVote"`
}

func newVoteResult(report *models.MistakeReport) voteResult {
	return voteResult{
		Upvotes:    report.Upvotes,
		Downvotes:  report.Downvotes,
		TotalVotes: report.TotalVotes,
		VoteScore:  report.VoteScore,
		UserVote:   report.UserVote,
	}
}

func (s *server) voteReport(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Vote string `json:"vote"`
	}
	if err := decodeJSON(r, &input); err != nil {
		s.fail(w, r, "Invalid request payload", err)
		return
	}
	dir, err := models.ParseVoteDirection(input.Vote)
	if err != nil {
		s.fail(w, r, "Invalid vote", err)
		return
	}

	ctx, cancel := withTimeout(r)
	defer cancel()

	report, err := s.svc.Vote(ctx, middleware.PrincipalFrom(r.Context()), r.PathValue("id"), dir)
	if err != nil {
		s.fail(w, r, "Failed to record vote", err)
		return
	}
	middleware.RecordVote(string(dir))
	response.Success(w, http.StatusOK, "Vote recorded successfully", newVoteResult(report))
}

func (s *server) unvoteReport(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r)
	defer cancel()

	report, err := s.svc.Unvote(ctx, middleware.PrincipalFrom(r.Context()), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, "Failed to remove vote", err)
		return
	}
	response.Success(w, http.StatusOK, "Vote removed successfully", newVoteResult(report))
}

func (s *server) getUserVote(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r)
	defer cancel()

	dir, err := s.svc.UserVote(ctx, middleware.PrincipalFrom(r.Context()), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, "Failed to fetch vote", err)
		return
	}
	response.Success(w, http.StatusOK, "Vote fetched successfully", map[string]models.VoteDirection{"userVote": dir})
}

func (s *server) investigateReport(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r)
	defer cancel()

	report, err := s.svc.Investigate(ctx, middleware.PrincipalFrom(r.Context()), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, "Failed to update report status", err)
		return
	}
	middleware.RecordModeration(string(report.Status))
	response.Success(w, http.StatusOK, "Report is under investigation", report)
}

func (s *server) verifyReport(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r)
	defer cancel()

	report, err := s.svc.Verify(ctx, middleware.PrincipalFrom(r.Context()), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, "Failed to verify report", err)
		return
	}
	middleware.RecordModeration(string(report.Status))
	response.Success(w, http.StatusOK, "Report verified successfully", report)
}

func (s *server) rejectReport(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Reason string `json:"reason"`
	}
	if err := decodeJSON(r, &input); err != nil {
		s.fail(w, r, "Invalid request payload", err)
		return
	}

	ctx, cancel := withTimeout(r)
	defer cancel()

	report, err := s.svc.Reject(ctx, middleware.PrincipalFrom(r.Context()), r.PathValue("id"), input.Reason)
	if err != nil {
		s.fail(w, r, "Failed to reject report", err)
		return
	}
	middleware.RecordModeration(string(report.Status))
	response.Success(w, http.StatusOK, "Report rejected successfully", report)
}

// attachEvidence accepts either a multipart file upload ("file" field) or a
// JSON body pointing at an existing URL.
func (s *server) attachEvidence(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	p := middleware.PrincipalFrom(r.Context())

	ctx, cancel := withTimeout(r)
	defer cancel()

	var evidence models.Evidence
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		if s.evidence == nil {
			response.Error(w, http.StatusServiceUnavailable, "Evidence uploads are disabled", "")
			return
		}
		if err := s.svc.CheckEvidenceAccess(ctx, p, id); err != nil {
			s.fail(w, r, "Failed to attach evidence", err)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, storage.MaxEvidenceSize+1<<20)
		file, header, err := r.FormFile("file")
		if err != nil {
			s.fail(w, r, "Invalid upload", apperr.InvalidArgument("file is required: %v", err))
			return
		}
		defer file.Close()

		contentType := header.Header.Get("Content-Type")
		if !storage.AllowedContentType(contentType) {
			s.fail(w, r, "Invalid upload", apperr.InvalidArgument("unsupported file type %q", contentType))
			return
		}
		if header.Size > storage.MaxEvidenceSize {
			s.fail(w, r, "Invalid upload", apperr.InvalidArgument("file exceeds %d bytes", storage.MaxEvidenceSize))
			return
		}
		url, err := s.evidence.Upload(ctx, id, contentType, file, header.Size)
		if err != nil {
			s.fail(w, r, "Failed to store evidence", err)
			return
		}
		evidence = models.Evidence{URL: url, Description: strings.TrimSpace(r.FormValue("description"))}
	} else if err := decodeJSON(r, &evidence); err != nil {
		s.fail(w, r, "Invalid request payload", err)
		return
	}

	report, err := s.svc.AttachEvidence(ctx, p, id, evidence)
	if err != nil {
		s.fail(w, r, "Failed to attach evidence", err)
		return
	}
	middleware.WithTrace(s.log, r).Info("evidence attached", zap.String("report_id", id), zap.String("url", evidence.URL))
	response.Success(w, http.StatusOK, "Evidence attached", report.Evidence)
}

func (s *server) revealReporter(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r)
	defer cancel()

	reporterID, err := s.svc.RevealReporter(ctx, r.PathValue("id"))
	if err != nil {
		s.fail(w, r, "Failed to reveal reporter", err)
		return
	}
	middleware.WithTrace(s.log, r).Warn("anonymous reporter revealed",
		zap.String("report_id", r.PathValue("id")),
		zap.String("admin", middleware.PrincipalFrom(r.Context()).UserID),
	)
	response.Success(w, http.StatusOK, "Reporter revealed", map[string]string{"reporterId": reporterID})
}
