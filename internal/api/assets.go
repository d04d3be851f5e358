package api

import (
	"database/sql"
	"log/slog"
	"net/http"
	"strings"

	"github.com/erazemk/oder/internal/custody"
	"github.com/erazemk/oder/internal/imaging"
	"github.com/erazemk/oder/internal/model"
	"github.com/erazemk/oder/internal/store"
)

// AssetsHandler handles catalog endpoints.
type AssetsHandler struct {
	Custody *custody.Service
	DB      *sql.DB
}

type createAssetsRequest struct {
	Model string   `json:"model"`
	IDs   []string `json:"ids"`
}

type assetView struct {
	model.Asset
	Holder *custody.Holding `json:"holder,omitempty"`
}

// List handles GET /api/assets.
func (h *AssetsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	assets, err := h.Custody.Assets(r.Context(), custody.AssetFilter{
		Model:  q.Get("model"),
		Status: q.Get("status"),
		Query:  q.Get("q"),
	})
	if err != nil {
		custodyError(w, "listing assets", err)
		return
	}
	if assets == nil {
		assets = []model.Asset{}
	}
	jsonResponse(w, http.StatusOK, assets)
}

// Create handles POST /api/assets.
func (h *AssetsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createAssetsRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	assets, err := h.Custody.ProvisionAssets(r.Context(), req.Model, req.IDs)
	if err != nil {
		custodyError(w, "provisioning assets", err)
		return
	}

	slog.Info("assets provisioned", "user", actor(r), "model", req.Model, "count", len(assets))
	jsonResponse(w, http.StatusCreated, assets)
}

// Get handles GET /api/assets/{id}. The holding order is included while the
// piece is out.
func (h *AssetsHandler) Get(w http.ResponseWriter, r *http.Request) {
	asset, err := h.Custody.Asset(r.Context(), r.PathValue("id"))
	if err != nil {
		custodyError(w, "getting asset", err)
		return
	}

	view := assetView{Asset: *asset}
	holder, err := h.Custody.FindHolder(r.Context(), asset.ID)
	switch {
	case err == nil:
		view.Holder = holder
	case custody.KindOf(err) != custody.KindNotFound:
		custodyError(w, "finding holder", err)
		return
	}
	jsonResponse(w, http.StatusOK, view)
}

// Models handles GET /api/models.
func (h *AssetsHandler) Models(w http.ResponseWriter, r *http.Request) {
	sum, err := h.Custody.Summary(r.Context())
	if err != nil {
		custodyError(w, "listing models", err)
		return
	}
	models := sum.Models
	if models == nil {
		models = []model.ModelSummary{}
	}
	jsonResponse(w, http.StatusOK, models)
}

// UploadImage handles PUT /api/models/{model}/image.
func (h *AssetsHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.PathValue("model"))
	known, err := h.Custody.Assets(r.Context(), custody.AssetFilter{Model: name})
	if err != nil {
		custodyError(w, "checking model", err)
		return
	}
	if len(known) == 0 {
		jsonError(w, http.StatusNotFound, "model not found")
		return
	}

	// Leave room for the multipart envelope.
	r.Body = http.MaxBytesReader(w, r.Body, imaging.MaxUploadSize+1<<20)
	if err := r.ParseMultipartForm(imaging.MaxUploadSize); err != nil {
		jsonError(w, http.StatusBadRequest, "file too large or invalid multipart form")
		return
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "image file required")
		return
	}
	defer file.Close()

	photo, err := imaging.Process(file, imaging.DefaultOptions)
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Store under the catalog's spelling of the model.
	if err := store.SetModelImage(r.Context(), h.DB, known[0].Model, photo.Data, photo.MIME); err != nil {
		slog.Error("failed to save image", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to save image")
		return
	}

	slog.Info("model image uploaded", "user", actor(r), "model", known[0].Model, "width", photo.Width, "height", photo.Height)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "image uploaded"})
}

// GetImage handles GET /api/models/{model}/image.
func (h *AssetsHandler) GetImage(w http.ResponseWriter, r *http.Request) {
	data, mime, err := store.GetModelImage(r.Context(), h.DB, r.PathValue("model"))
	if err != nil {
		slog.Error("failed to get image", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get image")
		return
	}
	if data == nil {
		jsonError(w, http.StatusNotFound, "no image")
		return
	}

	w.Header().Set("Content-Type", mime)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.Write(data)
}
