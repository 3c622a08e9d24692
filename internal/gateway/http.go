package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/yakan-hub/hukuwarai-hontai/fukuwarai"
	"github.com/yakan-hub/hukuwarai-hontai/internal/auth"
	"github.com/yakan-hub/hukuwarai-hontai/internal/catalog"
	"github.com/yakan-hub/hukuwarai-hontai/internal/codec"
	"github.com/yakan-hub/hukuwarai-hontai/internal/lobby"
	"github.com/yakan-hub/hukuwarai-hontai/internal/store"
)

// API serves the room lifecycle REST surface. Placement attempts go
// over the websocket only.
type API struct {
	lobby *lobby.Lobby
	auth  auth.Service

	// Base URL embedded in room QR codes, e.g. https://game.example.
	publicBaseURL string
}

func NewAPI(lby *lobby.Lobby, authService auth.Service, publicBaseURL string) *API {
	return &API{
		lobby:         lby,
		auth:          authService,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
	}
}

func (a *API) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/rooms", a.requireSession(a.handleCreateRoom))
	router.POST("/api/rooms/:id/join", a.requireSession(a.handleJoinRoom))
	router.POST("/api/rooms/:id/start", a.requireSession(a.handleStartGame))
	router.POST("/api/rooms/:id/template", a.requireSession(a.handleSelectTemplate))
	router.GET("/api/rooms/:id", a.handleGetRoom)
	router.GET("/api/rooms/:id/qr", a.handleRoomQR)
	router.GET("/api/templates", a.handleListTemplates)
	router.GET("/api/parts", a.handleListParts)
}

type sessionHandle func(w http.ResponseWriter, r *http.Request, ps httprouter.Params, accountID uint64)

func (a *API) requireSession(next sessionHandle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		accountID, _, ok := a.auth.ResolveSession(auth.BearerToken(r))
		if !ok {
			writeError(w, http.StatusUnauthorized, "invalid session")
			return
		}
		next(w, r, ps, accountID)
	}
}

type createRoomRequest struct {
	DisplayName string `json:"display_name"`
}

type roomResponse struct {
	Room   codec.RoomState    `json:"room"`
	Player *codec.PlayerState `json:"player,omitempty"`
}

func (a *API) handleCreateRoom(w http.ResponseWriter, r *http.Request, _ httprouter.Params, accountID uint64) {
	var req createRoomRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	roomRow, player, err := a.lobby.CreateRoom(r.Context(), req.DisplayName, accountID)
	if err != nil {
		a.writeLobbyError(w, err)
		return
	}
	playerState := codec.PlayerToState(player)
	writeJSON(w, http.StatusCreated, roomResponse{
		Room: codec.RoomState{
			ID:      roomRow.ID,
			Status:  roomRow.Status.String(),
			Players: []codec.PlayerState{playerState},
		},
		Player: &playerState,
	})
}

func (a *API) handleJoinRoom(w http.ResponseWriter, r *http.Request, ps httprouter.Params, accountID uint64) {
	var req createRoomRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	player, err := a.lobby.JoinRoom(r.Context(), ps.ByName("id"), req.DisplayName, accountID)
	if err != nil {
		a.writeLobbyError(w, err)
		return
	}
	playerState := codec.PlayerToState(player)
	writeJSON(w, http.StatusOK, roomResponse{
		Room:   codec.RoomState{ID: ps.ByName("id")},
		Player: &playerState,
	})
}

func (a *API) handleStartGame(w http.ResponseWriter, r *http.Request, ps httprouter.Params, accountID uint64) {
	roomRow, err := a.lobby.StartGame(r.Context(), ps.ByName("id"), accountID)
	if err != nil {
		a.writeLobbyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, roomResponse{Room: codec.RoomState{
		ID:                  roomRow.ID,
		Status:              roomRow.Status.String(),
		CurrentTurnPlayerID: roomRow.CurrentTurnPlayerID,
		TemplateID:          roomRow.TemplateID,
	}})
}

type templateRequest struct {
	TemplateID string `json:"template_id"`
}

func (a *API) handleSelectTemplate(w http.ResponseWriter, r *http.Request, ps httprouter.Params, accountID uint64) {
	var req templateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	roomRow, err := a.lobby.SelectTemplate(r.Context(), ps.ByName("id"), req.TemplateID, accountID)
	if err != nil {
		a.writeLobbyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, roomResponse{Room: codec.RoomState{
		ID:         roomRow.ID,
		Status:     roomRow.Status.String(),
		TemplateID: roomRow.TemplateID,
	}})
}

func (a *API) handleGetRoom(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	rt, err := a.lobby.Runtime(r.Context(), ps.ByName("id"))
	if err != nil {
		a.writeLobbyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, codec.SnapshotToState(rt.Snapshot()))
}

// handleRoomQR renders a QR code of the join URL so players at the
// same table can scan into the room.
func (a *API) handleRoomQR(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	roomID := ps.ByName("id")
	if _, err := a.lobby.Runtime(r.Context(), roomID); err != nil {
		a.writeLobbyError(w, err)
		return
	}

	joinURL := a.publicBaseURL + "/join/" + roomID
	png, err := qrcode.Encode(joinURL, qrcode.Medium, 256)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "qr encode failed")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

type templateState struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ImageURL string `json:"image_url"`
}

func (a *API) handleListTemplates(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	templates, err := a.lobby.Templates(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list templates failed")
		return
	}
	out := make([]templateState, 0, len(templates))
	for _, t := range templates {
		out = append(out, templateState{ID: t.ID, Name: t.Name, ImageURL: t.ImageURL})
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleListParts(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if raw := r.URL.Query().Get("part_type"); raw != "" {
		pt, ok := fukuwarai.ParsePartType(raw)
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown part type "+raw)
			return
		}
		writeJSON(w, http.StatusOK, catalog.ByType(pt))
		return
	}
	writeJSON(w, http.StatusOK, catalog.All())
}

func (a *API) writeLobbyError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "room not found")
	case errors.Is(err, lobby.ErrRoomFull):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, store.ErrRoomNotWaiting):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, lobby.ErrNotHost):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, lobby.ErrNotEnoughPlayers):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, lobby.ErrTemplateNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
