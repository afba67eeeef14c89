package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"planline/internal/engine"
	"planline/internal/ics"
	"planline/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
	// ShutdownCtx stops background workers when cancelled. When nil, workers
	// run until process exit.
	ShutdownCtx context.Context
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"no_space_on_day"`
	Message string         `json:"message" example:"target day has no free slot large enough"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the error envelope every endpoint returns.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Planline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newRequestLogger(cfg.Engine.Log))
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Planline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerOwners(group, cfg.Engine)
	registerItems(group, cfg.Engine)
	registerCommitments(group, cfg.Engine)
	registerSlots(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerAPIKeys(group, cfg.Engine)
	registerMe(group, cfg.Engine)
	registerDevAuth(group, cfg.Auth)
	registerOpenAPI(router, api, basePath)

	shutdownCtx := cfg.ShutdownCtx
	if shutdownCtx == nil {
		shutdownCtx = context.Background()
	}
	startWebhookDispatcher(shutdownCtx, cfg.Engine)

	return router, nil
}

func newRequestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			log.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.status).
				Dur("elapsed", time.Since(start)).
				Msg("request")
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	if errors.Is(err, engine.ErrConcurrentConflict) {
		return newAPIError(http.StatusConflict, "concurrent_conflict", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "required") || strings.Contains(lowered, "must be"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	open := map[string]bool{
		"/" + strings.TrimPrefix(path.Join(basePath, "health"), "/"):         true,
		"/" + strings.TrimPrefix(path.Join(basePath, "auth/dev/login"), "/"): true,
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if open[route] {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Planline API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerOwners(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-owner",
		Method:        http.MethodPost,
		Path:          "/owners",
		Summary:       "Create owner",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body CreateOwnerRequest `json:"body"`
	}) (*struct {
		Body ownerBody `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		o, err := e.CreateOwner(ctx, input.Body.ID, input.Body.Name, input.Body.Role)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ownerBody `json:"body"`
		}{Body: ownerBody{Owner: o}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-owners",
		Method:      http.MethodGet,
		Path:        "/owners",
		Summary:     "List owners",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body ownersBody `json:"body"`
	}, error) {
		owners, err := e.Repo.ListOwners(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ownersBody `json:"body"`
		}{Body: ownersBody{Owners: nonNilSlice(owners)}}, nil
	})
}

func registerItems(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-item",
		Method:        http.MethodPost,
		Path:          "/items",
		Summary:       "Create work item",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body CreateItemRequest `json:"body"`
	}) (*struct {
		Body ItemResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		opts := engine.ItemCreateOptions{
			OwnerID:        input.Body.OwnerID,
			Title:          input.Body.Title,
			DueDate:        input.Body.DueDate,
			EstimatedHours: input.Body.EstimatedHours,
			Pinned:         input.Body.Pinned,
			PlacementDate:  input.Body.PlacementDate,
			PlacementStart: input.Body.PlacementStart,
			ActorID:        actorID,
		}
		if input.Body.ID != nil {
			opts.ID = *input.Body.ID
		}
		item, placement, err := e.CreateItem(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ItemResponse `json:"body"`
		}{Body: ItemResponse{Item: item, Placement: &placement}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-items",
		Method:      http.MethodGet,
		Path:        "/items",
		Summary:     "List work items",
	}, func(ctx context.Context, input *struct {
		OwnerID       string `query:"owner_id"`
		PlacementDate string `query:"placement_date"`
	}) (*struct {
		Body itemsBody `json:"body"`
	}, error) {
		items, err := e.Repo.ListWorkItems(ctx, input.OwnerID, input.PlacementDate)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body itemsBody `json:"body"`
		}{Body: itemsBody{Items: nonNilSlice(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-item",
		Method:      http.MethodGet,
		Path:        "/items/{item_id}",
		Summary:     "Get work item",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ItemID string `path:"item_id"`
	}) (*struct {
		Body ItemResponse `json:"body"`
	}, error) {
		item, err := e.Repo.GetWorkItem(ctx, input.ItemID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ItemResponse `json:"body"`
		}{Body: ItemResponse{Item: item}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "log-effort",
		Method:      http.MethodPost,
		Path:        "/items/{item_id}/effort",
		Summary:     "Log effort against an item",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ItemID string           `path:"item_id"`
		Body   LogEffortRequest `json:"body"`
	}) (*struct {
		Body ItemResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		item, placement, err := e.LogEffort(ctx, input.ItemID, input.Body.Hours, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ItemResponse `json:"body"`
		}{Body: ItemResponse{Item: item, Placement: &placement}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-due-date",
		Method:      http.MethodPatch,
		Path:        "/items/{item_id}/due",
		Summary:     "Set item due date",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ItemID string            `path:"item_id"`
		Body   SetDueDateRequest `json:"body"`
	}) (*struct {
		Body ItemResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		item, placement, err := e.SetDueDate(ctx, input.ItemID, input.Body.DueDate, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ItemResponse `json:"body"`
		}{Body: ItemResponse{Item: item, Placement: &placement}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "place-item",
		Method:      http.MethodPost,
		Path:        "/items/{item_id}/place",
		Summary:     "Derive a placement for an item",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ItemID string `path:"item_id"`
	}) (*struct {
		Body engine.PlacementResult `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		result, err := e.AutoPlace(ctx, input.ItemID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.PlacementResult `json:"body"`
		}{Body: result}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "move-item",
		Method:      http.MethodPost,
		Path:        "/items/{item_id}/move",
		Summary:     "Reposition an item by drag",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ItemID string          `path:"item_id"`
		Body   MoveItemRequest `json:"body"`
	}) (*struct {
		Body engine.MoveOutcome `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		canMoveForward, err := moveCapability(ctx, e, principal)
		if err != nil {
			return nil, handleError(err)
		}
		outcome, err := e.ValidateMove(ctx, canMoveForward, input.ItemID, input.Body.Date, input.Body.Start, principal.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.MoveOutcome `json:"body"`
		}{Body: outcome}, nil
	})
}

// moveCapability resolves the drag-direction policy for the caller. The stored
// owner role wins; the JWT role claim covers actors not registered as owners.
func moveCapability(ctx context.Context, e engine.Engine, p Principal) (bool, error) {
	o, err := e.Repo.GetOwner(ctx, p.ActorID)
	if err == nil {
		return o.CanMoveForward(), nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return false, err
	}
	return p.Role == "planner", nil
}

func registerCommitments(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-commitment",
		Method:        http.MethodPost,
		Path:          "/commitments",
		Summary:       "Create commitment",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body CreateCommitmentRequest `json:"body"`
	}) (*struct {
		Body CommitmentResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		opts := engine.CommitmentCreateOptions{
			OwnerID:         input.Body.OwnerID,
			Title:           input.Body.Title,
			Date:            input.Body.Date,
			Start:           input.Body.Start,
			DurationMinutes: input.Body.DurationMinutes,
			ActorID:         actorID,
		}
		if input.Body.ID != nil {
			opts.ID = *input.Body.ID
		}
		c, moved, err := e.CreateCommitment(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CommitmentResponse `json:"body"`
		}{Body: CommitmentResponse{Commitment: c, Moved: nonNilSlice(moved)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-commitments",
		Method:      http.MethodGet,
		Path:        "/commitments",
		Summary:     "List commitments",
	}, func(ctx context.Context, input *struct {
		OwnerID string `query:"owner_id"`
		Date    string `query:"date"`
	}) (*struct {
		Body commitmentsBody `json:"body"`
	}, error) {
		items, err := e.Repo.ListCommitments(ctx, input.OwnerID, input.Date)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body commitmentsBody `json:"body"`
		}{Body: commitmentsBody{Commitments: nonNilSlice(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-commitment",
		Method:      http.MethodPatch,
		Path:        "/commitments/{commitment_id}",
		Summary:     "Update commitment schedule",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		CommitmentID string                  `path:"commitment_id"`
		Body         UpdateCommitmentRequest `json:"body"`
	}) (*struct {
		Body CommitmentResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, moved, err := e.UpdateCommitment(ctx, input.CommitmentID, input.Body.Date, input.Body.Start, input.Body.DurationMinutes, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CommitmentResponse `json:"body"`
		}{Body: CommitmentResponse{Commitment: c, Moved: nonNilSlice(moved)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-commitment",
		Method:      http.MethodDelete,
		Path:        "/commitments/{commitment_id}",
		Summary:     "Delete commitment",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		CommitmentID string `path:"commitment_id"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteCommitment(ctx, input.CommitmentID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "import-commitments",
		Method:      http.MethodPost,
		Path:        "/commitments/import",
		Summary:     "Import commitments from an ICS calendar",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		OwnerID string `query:"owner_id"`
		RawBody []byte `contentType:"text/calendar"`
	}) (*struct {
		Body ImportResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if input.OwnerID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "owner_id is required", nil)
		}
		if len(input.RawBody) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "ics body required", nil)
		}
		created, movedIDs, err := ics.Import(ctx, e, bytes.NewReader(input.RawBody), input.OwnerID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ImportResponse `json:"body"`
		}{Body: ImportResponse{Created: created, MovedItemIDs: nonNilSlice(movedIDs)}}, nil
	})
}

func registerSlots(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-slots",
		Method:      http.MethodGet,
		Path:        "/owners/{owner_id}/slots",
		Summary:     "Free slots on one owner's day",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		OwnerID    string `path:"owner_id"`
		Date       string `query:"date"`
		MinMinutes int    `query:"min_minutes" default:"30"`
	}) (*struct {
		Body slotsBody `json:"body"`
	}, error) {
		if input.Date == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "date is required", nil)
		}
		slots, err := e.FindFreeSlots(ctx, input.OwnerID, input.Date, input.MinMinutes)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body slotsBody `json:"body"`
		}{Body: slotsBody{Slots: mapSlots(slots)}}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List events",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		OwnerID string `query:"owner_id"`
		Limit   int    `query:"limit" default:"50"`
		Cursor  string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		limit := normalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		items, err := e.Repo.EventsAfter(ctx, limit+1, cursorID, input.OwnerID)
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: nonNilSlice(items)}
		if len(items) > limit {
			resp.NextCursor = fmt.Sprintf("%d", items[limit-1].ID)
			resp.Items = items[:limit]
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}

func registerAPIKeys(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/apikeys",
		Summary:       "Create API key",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body CreateAPIKeyRequest `json:"body"`
	}) (*struct {
		Body APIKeyResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		if input.Body.ActorID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actor_id is required", nil)
		}
		plaintext := uuid.New().String()
		key, err := e.CreateAPIKey(ctx, input.Body.ActorID, input.Body.Name, plaintext)
		if err != nil {
			return nil, handleError(err)
		}
		// The plaintext key is only returned here; store it somewhere safe.
		return &struct {
			Body APIKeyResponse `json:"body"`
		}{Body: APIKeyResponse{
			ID:        key.ID,
			ActorID:   key.ActorID,
			Name:      key.Name,
			Key:       plaintext,
			CreatedAt: key.CreatedAt,
		}}, nil
	})
}

func registerMe(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current principal",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body WhoAmIResponse `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		role := principal.Role
		if o, err := e.Repo.GetOwner(ctx, principal.ActorID); err == nil {
			role = o.Role
		}
		return &struct {
			Body WhoAmIResponse `json:"body"`
		}{Body: WhoAmIResponse{
			ActorID: principal.ActorID,
			Role:    role,
			Source:  principal.Source,
		}}, nil
	})
}

func registerDevAuth(api huma.API, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "DEV ONLY: mint a JWT for local testing",
		Errors:      []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest `json:"body"`
	}) (*struct {
		Body DevLoginResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actor := strings.TrimSpace(input.Body.ActorID)
		if actor == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actor_id is required", nil)
		}
		token, err := signDevToken(authCfg.JWTSecret, actor, input.Body.Role)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return &struct {
			Body DevLoginResponse `json:"body"`
		}{Body: DevLoginResponse{Token: token}}, nil
	})
}

func bodyBytes(ctx context.Context) []byte {
	if buf, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return buf
	}
	req, ok := ctx.Value(requestKey{}).(*http.Request)
	if !ok || req == nil {
		return nil
	}
	data, _ := io.ReadAll(req.Body)
	return data
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}
