package diagnose

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"agriaid/crop"
	"agriaid/history"
	"agriaid/location"
	"agriaid/logger"
	"agriaid/speech"
	"agriaid/sse"
	"agriaid/wizard"
)

// maxPhotoBytes caps an uploaded plant photo.
const maxPhotoBytes = 10 << 20

// Options wires the handler's collaborators. Only Gateway is required.
type Options struct {
	Gateway    crop.Gateway
	Timeouts   wizard.Timeouts
	Voice      speech.Synthesizer
	Location   *location.Service
	History    history.Recorder
	Log        logger.Logger
	SessionTTL time.Duration

	// SpeechTimeout bounds one remote voice call. Zero means 30s.
	SpeechTimeout time.Duration
}

type Handler struct {
	store    *Store
	disease  *wizard.DiseaseStep
	solution *wizard.SolutionStep
	voice    speech.Synthesizer
	locator  *location.Service
	history  history.Recorder
	log      logger.Logger

	speechTimeout time.Duration
}

func NewHandler(o Options) *Handler {
	if o.Log == nil {
		o.Log = logger.Nop()
	}
	if o.History == nil {
		o.History = history.Nop{}
	}
	if o.SpeechTimeout <= 0 {
		o.SpeechTimeout = 30 * time.Second
	}
	return &Handler{
		store:    NewStore(o.SessionTTL, o.Log),
		disease:  &wizard.DiseaseStep{Gateway: o.Gateway, Log: o.Log, Timeouts: o.Timeouts},
		solution: &wizard.SolutionStep{Gateway: o.Gateway, Log: o.Log, Timeouts: o.Timeouts},
		voice:    o.Voice,
		locator:  o.Location,
		history:  o.History,
		log:      o.Log,

		speechTimeout: o.SpeechTimeout,
	}
}

// Store exposes the session store so the server can run its janitor.
func (h *Handler) Store() *Store { return h.store }

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	r.POST("/sessions", h.CreateSession)
	s := r.Group("/sessions/:id")
	s.GET("", h.GetSession)
	s.POST("/start", h.Start)
	s.GET("/diseases", h.Diseases)
	s.GET("/diseases/stream", h.StreamDiseases)
	s.POST("/select", h.Select)
	s.GET("/solution", h.Solution)
	s.POST("/reset", h.Reset)
	s.POST("/speech", h.Speech)

	r.GET("/location", h.Location)
	r.GET("/history", h.History)
}

func (h *Handler) session(c *gin.Context) (*Session, bool) {
	sess, err := h.store.Get(c.Param("id"))
	if err != nil {
		fail(c, http.StatusNotFound, err.Error())
		return nil, false
	}
	return sess, true
}

func (h *Handler) CreateSession(c *gin.Context) {
	sess := h.store.Create()
	h.log.Infof(sess.Context(), "session created")
	c.JSON(http.StatusCreated, gin.H{"id": sess.ID, "state": wizard.UserInput.String()})
}

func (h *Handler) GetSession(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, sess.Controller.Snapshot())
}

// --- Step 1 --- //

type startReq struct {
	Crop        string      `json:"crop" form:"crop" binding:"required"`
	DaysPlanted json.Number `json:"days_planted" form:"days_planted" binding:"required"`
	// Photo is a data: URI when the body is JSON; multipart uses a file part.
	Photo string `json:"photo" form:"-"`
}

// Start validates step-1 input, moves to disease selection and starts the
// prediction in the background.
func (h *Handler) Start(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	ctl := sess.Controller
	if ctl.State() != wizard.UserInput {
		fail(c, http.StatusConflict, wizard.ErrInvalidTransition.Error())
		return
	}

	var req startReq
	if err := c.ShouldBind(&req); err != nil {
		var syn *json.SyntaxError
		if errors.As(err, &syn) || errors.Is(err, io.EOF) {
			fail(c, http.StatusBadRequest, "invalid body")
			return
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.rejectInput(c, ctl, crop.UnreadableImage(err))
			return
		}
		if details := validationDetails(err); details != nil {
			ve := &crop.ValidationError{Field: details[0].Path, Message: crop.MsgRequiredFields, Err: err}
			ctl.RejectInput(ve)
			badInput(c, ve.Message, details)
			return
		}
		ve := &crop.ValidationError{Field: "days_planted", Message: crop.MsgInvalidDays, Err: err}
		ctl.RejectInput(ve)
		badInput(c, ve.Message, []FieldError{{Path: ve.Field, Info: ve.Message}})
		return
	}

	img, err := h.readPhoto(c, req.Photo)
	if err != nil {
		h.rejectInput(c, ctl, err)
		return
	}
	ud, err := crop.NewUserData(req.Crop, req.DaysPlanted.String(), img)
	if err != nil {
		h.rejectInput(c, ctl, err)
		return
	}
	if err := ctl.Start(ud); err != nil {
		h.rejectInput(c, ctl, err)
		return
	}
	h.log.Infof(sess.Context(), "step 1 accepted: crop=%s days=%d photo=%t", ud.Crop, ud.DaysPlanted, ud.PlantImage != nil)

	go func() {
		if err := h.disease.Enter(sess.Context(), ctl, wizard.Progress{}); err != nil && !errors.Is(err, wizard.ErrAlreadyFetched) {
			h.log.Debugf(sess.Context(), "disease step ended: %v", err)
		}
	}()
	c.JSON(http.StatusOK, ctl.Snapshot())
}

func (h *Handler) rejectInput(c *gin.Context, ctl *wizard.Controller, err error) {
	var ve *crop.ValidationError
	if errors.As(err, &ve) {
		ctl.RejectInput(ve)
		badInput(c, ve.Message, []FieldError{{Path: ve.Field, Info: ve.Message}})
		return
	}
	fail(c, statusFor(err), err.Error())
}

// readPhoto returns the optional plant photo from a multipart part or a
// JSON data URI. No photo is not an error.
func (h *Handler) readPhoto(c *gin.Context, dataURI string) (*crop.PlantImage, error) {
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		fh, err := c.FormFile("photo")
		if errors.Is(err, http.ErrMissingFile) {
			return nil, nil
		}
		if err != nil {
			return nil, crop.UnreadableImage(err)
		}
		return readPart(fh)
	}
	if strings.TrimSpace(dataURI) == "" {
		return nil, nil
	}
	mimeType, data, err := crop.DecodeDataURI(dataURI)
	if err != nil {
		return nil, crop.UnreadableImage(err)
	}
	return &crop.PlantImage{MimeType: mimeType, Data: data}, nil
}

func readPart(fh *multipart.FileHeader) (*crop.PlantImage, error) {
	if fh.Size > maxPhotoBytes {
		return nil, crop.UnreadableImage(errors.New("photo is too large"))
	}
	f, err := fh.Open()
	if err != nil {
		return nil, crop.UnreadableImage(err)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxPhotoBytes))
	if err != nil {
		return nil, crop.UnreadableImage(err)
	}
	mimeType := fh.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(data)
	}
	return &crop.PlantImage{MimeType: mimeType, Data: data}, nil
}

// --- Step 2 --- //

func (h *Handler) Diseases(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	snap := sess.Controller.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"state":           snap.State,
		"diseases":        snap.Diseases,
		"loading":         snap.Loading,
		"loading_message": snap.LoadingMessage,
		"error":           snap.Error,
	})
}

// StreamDiseases pushes the disease list as it fills in. The first event is
// the current snapshot; the stream ends with done, error or reset.
func (h *Handler) StreamDiseases(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	ctl := sess.Controller
	updates, unsubscribe := ctl.Subscribe()
	defer unsubscribe()

	snap := ctl.Snapshot()
	if ctl.State() != wizard.DiseaseSelection {
		fail(c, http.StatusConflict, wizard.ErrInvalidTransition.Error())
		return
	}

	events := make(chan sse.Event, 1)
	ctx := c.Request.Context()
	go func() {
		defer close(events)
		send := func(ev sse.Event) bool {
			select {
			case events <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}
		if !send(sse.Event{Name: "snapshot", Data: snap}) {
			return
		}
		switch {
		case snap.Error != "":
			send(sse.Event{Name: "error", Data: wizard.Update{Kind: wizard.UpdateError, Message: snap.Error}})
			return
		case !snap.Loading && len(snap.Diseases) > 0:
			send(sse.Event{Name: "done", Data: wizard.Update{Kind: wizard.UpdateDone, Total: len(snap.Diseases), Diseases: snap.Diseases}})
			return
		}
		for u := range updates {
			name := "disease"
			switch u.Kind {
			case wizard.UpdateDone, wizard.UpdateError, wizard.UpdateReset:
				name = string(u.Kind)
			}
			if !send(sse.Event{Name: name, Data: u}) || name != "disease" {
				return
			}
		}
	}()
	sse.Stream(c, events)
}

type selectReq struct {
	Name string `json:"name" binding:"required"`
}

func (h *Handler) Select(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	var req selectReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badInput(c, "disease name is required", validationDetails(err))
		return
	}
	if err := sess.Controller.Select(req.Name); err != nil {
		fail(c, statusFor(err), err.Error())
		return
	}
	h.log.Infof(sess.Context(), "disease selected: %s", req.Name)
	c.JSON(http.StatusOK, sess.Controller.Snapshot())
}

// --- Step 3 --- //

type solutionResp struct {
	Disease   string            `json:"disease"`
	Solution  crop.SolutionInfo `json:"solution"`
	ReadAloud string            `json:"read_aloud"`
}

// Solution runs the plan fetch for this entry into the solution step, or
// returns the plan it already produced.
func (h *Handler) Solution(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	ctl := sess.Controller
	if ctl.State() != wizard.Solution {
		fail(c, http.StatusConflict, wizard.ErrInvalidTransition.Error())
		return
	}

	plan, err := h.solution.Enter(sess.Context(), ctl, wizard.Progress{})
	snap := ctl.Snapshot()
	switch {
	case err == nil:
		h.record(sess, snap, plan)
	case errors.Is(err, wizard.ErrAlreadyFetched):
		if snap.Solution == nil {
			if snap.Error != "" {
				fail(c, http.StatusBadGateway, snap.Error)
				return
			}
			c.JSON(http.StatusAccepted, snap)
			return
		}
		plan = *snap.Solution
	default:
		msg := snap.Error
		if msg == "" {
			msg = err.Error()
		}
		fail(c, statusFor(err), msg)
		return
	}
	if snap.Selected == nil {
		fail(c, http.StatusConflict, wizard.ErrInvalidTransition.Error())
		return
	}
	c.JSON(http.StatusOK, solutionResp{
		Disease:   snap.Selected.Name,
		Solution:  plan,
		ReadAloud: plan.ReadAloudScript(snap.Selected.Name),
	})
}

func (h *Handler) record(sess *Session, snap wizard.Snapshot, plan crop.SolutionInfo) {
	if snap.UserData == nil || snap.Selected == nil {
		return
	}
	ctx, cancel := context.WithTimeout(sess.Context(), 5*time.Second)
	defer cancel()
	err := h.history.Record(ctx, history.Record{
		SessionID:   sess.ID,
		Crop:        snap.UserData.Crop,
		DaysPlanted: snap.UserData.DaysPlanted,
		Disease:     snap.Selected.Name,
		Plan:        plan,
	})
	if err != nil {
		h.log.Warnf(ctx, "record history failed: %v", err)
	}
}

func (h *Handler) Reset(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	sess.Controller.Reset()
	h.log.Infof(sess.Context(), "session reset")
	c.JSON(http.StatusOK, sess.Controller.Snapshot())
}

// Speech proxies the remote voice so clients never hold its key. Only the
// session's action plan is read; when the voice fails the client is told to
// use its local voice.
func (h *Handler) Speech(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	snap := sess.Controller.Snapshot()
	if sess.Controller.State() != wizard.Solution || snap.Solution == nil || snap.Selected == nil {
		fail(c, http.StatusConflict, "no action plan to read")
		return
	}
	text := snap.Solution.ReadAloudScript(snap.Selected.Name)

	if h.voice == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"fallback": "local", "text": text})
		return
	}
	ctx, cancel := context.WithTimeout(sess.Context(), h.speechTimeout)
	defer cancel()
	audio, err := h.voice.Synthesize(ctx, text)
	if err == nil && len(audio) == 0 {
		err = &crop.SpeechError{Err: errors.New("empty audio")}
	}
	if err != nil {
		h.log.Warnf(sess.Context(), "remote voice failed, client falls back to local voice: %v", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"fallback": "local", "text": text})
		return
	}
	c.Data(http.StatusOK, "audio/mpeg", audio)
}

// --- Standalone capabilities --- //

func (h *Handler) Location(c *gin.Context) {
	coords, err := h.locator.GetCurrentLocation(c.Request.Context())
	if err != nil {
		var le *location.Error
		if errors.As(err, &le) {
			c.JSON(locationStatus(le.Reason), gin.H{"error": le.Error(), "reason": le.Reason.String()})
			return
		}
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, coords)
}

func (h *Handler) History(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	list, err := h.history.Recent(c.Request.Context(), limit)
	if err != nil {
		h.log.Errorf(c.Request.Context(), "list history failed: %v", err)
		fail(c, http.StatusInternalServerError, "could not load history")
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": list})
}
