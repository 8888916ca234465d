package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/malan-ai/malan-server/internal/config"
	"github.com/malan-ai/malan-server/internal/domain/chat"
	"github.com/malan-ai/malan-server/internal/infrastructure/metrics"
	"github.com/malan-ai/malan-server/internal/infrastructure/storage"
	"github.com/malan-ai/malan-server/internal/interfaces/httpserver/requests"
	"github.com/malan-ai/malan-server/internal/interfaces/httpserver/responses"
	"github.com/malan-ai/malan-server/internal/utils/fileid"
	"github.com/malan-ai/malan-server/internal/utils/platformerrors"
)

const (
	conversationHeader = "X-Conversation-Id"
	inlineReplyName    = fileid.ReplyFilePrefix + ".txt"
	fileFormField      = "file"
)

// ChatHandler serves POST /api/chat.
type ChatHandler struct {
	cfg     *config.Config
	service *chat.Service
	storage storage.Storage
	log     zerolog.Logger
}

func NewChatHandler(cfg *config.Config, service *chat.Service, store storage.Storage, log zerolog.Logger) *ChatHandler {
	return &ChatHandler{
		cfg:     cfg,
		service: service,
		storage: store,
		log:     log.With().Str("component", "chat-handler").Logger(),
	}
}

// Chat godoc
// @Summary      Send a chat turn
// @Description  Forwards the message and its attachments to the model and returns the formatted reply. With createfile set the reply is returned as a text file, or stored and linked when REPLY_FILE_MODE=stored.
// @Tags         chat
// @Accept       multipart/form-data
// @Accept       json
// @Produce      json
// @Produce      plain
// @Param        message            formData  string  false  "User message"
// @Param        createfile         formData  string  false  "Return the reply as a file (true or 1)"
// @Param        includeServerFile  formData  string  false  "Include the diagnostic resource (true or 1)"
// @Param        conversation_id    formData  string  false  "Conversation id"
// @Param        file               formData  file    false  "Attachments"
// @Param        X-Conversation-Id  header    string  false  "Conversation id"
// @Success      200  {object}  responses.ChatResponse
// @Success      200  {object}  responses.ChatFileResponse
// @Failure      400  {object}  responses.ErrorResponse
// @Failure      413  {object}  responses.ErrorResponse
// @Failure      500  {object}  responses.ErrorResponse
// @Router       /api/chat [post]
func (h *ChatHandler) Chat(c *gin.Context) {
	req, attachments, err := h.bind(c)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			responses.HandleErrorWithStatus(c, http.StatusRequestEntityTooLarge, err,
				fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
			return
		}
		responses.HandleNewError(c, platformerrors.ErrorTypeValidation, "invalid chat request: "+err.Error(),
			"3f6d9b2e-7a1c-4e5f-8b0d-2c4a6e8f1b3d")
		return
	}
	if req.ConversationID == "" {
		req.ConversationID = c.GetHeader(conversationHeader)
	}

	mode := "json"
	if req.CreateFile {
		mode = "file"
	}

	result, err := h.service.Chat(c.Request.Context(), req.ToDomain(attachments))
	if err != nil {
		if errors.Is(err, chat.ErrInference) {
			metrics.RecordChatTurn("inference_error", mode)
			responses.HandleErrorWithStatus(c, http.StatusInternalServerError, err, chat.ErrInference.Error())
			return
		}
		metrics.RecordChatTurn("error", mode)
		responses.HandleError(c, err, "chat turn failed")
		return
	}
	metrics.RecordChatTurn("success", mode)
	c.Header(conversationHeader, result.ConversationID)

	if !req.CreateFile || result.Reply == "" {
		c.JSON(http.StatusOK, responses.BuildChatResponse(result))
		return
	}

	if !h.cfg.StoresReplyFiles() {
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", inlineReplyName))
		c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(result.Reply))
		return
	}

	if h.storage == nil {
		responses.HandleNewError(c, platformerrors.ErrorTypeInternal, "reply storage is not configured",
			"8c2e4a6b-0d1f-4b3c-9e5a-7f1b3d5c7e9a")
		return
	}
	name := fileid.ReplyFileName()
	body := []byte(result.Reply)
	if err := h.storage.Upload(c.Request.Context(), name, bytes.NewReader(body), int64(len(body)), "text/plain; charset=utf-8"); err != nil {
		h.log.Error().Err(err).Str("file", name).Msg("failed to store reply file")
		responses.HandleErrorWithStatus(c, http.StatusInternalServerError, err, "failed to store reply file")
		return
	}
	h.log.Info().Str("file", name).Str("conversation_id", result.ConversationID).Msg("reply file stored")
	c.JSON(http.StatusOK, responses.BuildChatFileResponse(result, name, downloadURL(h.cfg.LocalStorageBaseURL, name)))
}

// bind reads the request fields and attachments from a multipart, url
// encoded or JSON body.
func (h *ChatHandler) bind(c *gin.Context) (*requests.ChatRequest, []chat.Attachment, error) {
	if h.cfg.MaxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.cfg.MaxUploadBytes)
	}

	req := &requests.ChatRequest{}
	contentType := c.ContentType()
	switch {
	case contentType == gin.MIMEJSON:
		if c.Request.ContentLength == 0 {
			return req, nil, nil
		}
		if err := c.ShouldBindJSON(req); err != nil {
			return nil, nil, err
		}
		return req, nil, nil
	case contentType == gin.MIMEMultipartPOSTForm:
		form, err := c.MultipartForm()
		if err != nil {
			return nil, nil, err
		}
		readFormFields(req, form.Value)
		attachments, err := h.readAttachments(form.File[fileFormField])
		if err != nil {
			return nil, nil, err
		}
		return req, attachments, nil
	default:
		if err := c.Request.ParseForm(); err != nil {
			return nil, nil, err
		}
		readFormFields(req, c.Request.PostForm)
		return req, nil, nil
	}
}

func readFormFields(req *requests.ChatRequest, values map[string][]string) {
	first := func(key string) string {
		if v := values[key]; len(v) > 0 {
			return v[0]
		}
		return ""
	}
	req.Message = first("message")
	req.CreateFile = requests.ParseFlag(first("createfile"))
	req.IncludeServerFile = requests.ParseFlag(first("includeServerFile"))
	req.ConversationID = strings.TrimSpace(first("conversation_id"))
}

func (h *ChatHandler) readAttachments(files []*multipart.FileHeader) ([]chat.Attachment, error) {
	attachments := make([]chat.Attachment, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("open attachment %s: %w", fh.Filename, err)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("read attachment %s: %w", fh.Filename, err)
		}

		mimeType := attachmentMimeType(fh.Header.Get("Content-Type"), data)
		class := "file"
		if chat.IsImage(mimeType) {
			class = "image"
		}
		metrics.RecordAttachment(class, len(data))

		attachments = append(attachments, chat.Attachment{
			Filename: fh.Filename,
			MimeType: mimeType,
			Data:     data,
		})
	}
	return attachments, nil
}

// attachmentMimeType trusts the declared part type unless it is missing or
// generic, in which case the bytes are sniffed.
func attachmentMimeType(declared string, data []byte) string {
	declared = strings.ToLower(strings.TrimSpace(declared))
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	detected := mimetype.Detect(data).String()
	if base, _, ok := strings.Cut(detected, ";"); ok {
		detected = base
	}
	return strings.TrimSpace(detected)
}

// downloadURL is relative unless a public base URL is configured.
func downloadURL(baseURL, name string) string {
	return strings.TrimRight(strings.TrimSpace(baseURL), "/") + "/download/" + name
}
