package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/lojistavip/vipchat-server/internal/chat"
	"github.com/lojistavip/vipchat-server/internal/store"
)

// HistoryHandlers serves paginated message history. Channel ids are
// resolved through the same addressing function the WebSocket path
// uses, so both surfaces agree on which messages belong where.
type HistoryHandlers struct {
	store    store.MessageStore
	pageSize int
	log      *zerolog.Logger
}

// NewHistoryHandlers creates a new history handlers instance.
func NewHistoryHandlers(st store.MessageStore, pageSize int, logger *zerolog.Logger) *HistoryHandlers {
	if pageSize <= 0 {
		pageSize = 50
	}
	return &HistoryHandlers{
		store:    st,
		pageSize: pageSize,
		log:      logger,
	}
}

// MessageResponse represents a message in API responses.
type MessageResponse struct {
	ID            string `json:"id"`
	Seq           int64  `json:"seq"`
	ChannelID     string `json:"channel_id"`
	SenderID      string `json:"sender_id"`
	Text          string `json:"text"`
	AttachmentURL string `json:"attachment_url,omitempty"`
	TS            int64  `json:"ts"`
	IsMine        bool   `json:"is_mine"`
}

// Community returns a page of the broadcast channel history.
// GET /api/channels/community/messages?limit=&before=
func (h *HistoryHandlers) Community(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}
	h.listChannel(c, chat.BroadcastChannel, uid)
}

// Direct returns a page of the direct channel history with :peer.
// GET /api/channels/direct/:peer/messages?limit=&before=
func (h *HistoryHandlers) Direct(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	channelID, err := chat.DirectChannel(uid, c.Param("peer"))
	if err != nil {
		if errors.Is(err, chat.ErrInvalidParticipant) || errors.Is(err, chat.ErrSelfAddressed) {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}
		h.log.Error().Err(err).Msg("failed to resolve direct channel")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	h.listChannel(c, channelID, uid)
}

func (h *HistoryHandlers) listChannel(c *gin.Context, channelID, viewerID string) {
	limit := h.pageSize
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid limit"})
			return
		}
		if parsed < limit {
			limit = parsed
		}
	}

	var beforeSeq int64
	if raw := c.Query("before"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid before cursor"})
			return
		}
		beforeSeq = parsed
	}

	msgs, err := h.store.ListMessages(c.Request.Context(), channelID, limit, beforeSeq)
	if err != nil {
		h.log.Error().Err(err).Str("channel_id", channelID).Msg("failed to list messages")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]MessageResponse, 0, len(msgs))
	for _, msg := range msgs {
		response = append(response, MessageResponse{
			ID:            msg.ID,
			Seq:           msg.Seq,
			ChannelID:     msg.ChannelID,
			SenderID:      msg.SenderID,
			Text:          msg.Text,
			AttachmentURL: msg.AttachmentURL,
			TS:            msg.CreatedAt.UnixMilli(),
			IsMine:        msg.SenderID == viewerID,
		})
	}
	c.JSON(http.StatusOK, response)
}
