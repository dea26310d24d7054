// Package delivery accepts seller work product for an order.
package delivery

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/angelmondragon/gigmarket-backend/internal/orders"
	"github.com/angelmondragon/gigmarket-backend/pkg/db/models"
	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gigmarket-backend/pkg/errors"
	"github.com/angelmondragon/gigmarket-backend/pkg/logger"
)

const (
	pdfMIME            = "application/pdf"
	sniffBytes         = 3072
	maxLinkLength      = 500
	defaultMaxNote     = 5000
	defaultMaxFileSize = 10 << 20
	defaultPrefix      = "deliveries"
)

var validate = validator.New()

// BlobStore persists uploaded files. *gcs.Client satisfies it.
type BlobStore interface {
	Upload(ctx context.Context, object, contentType string, body io.Reader) (string, error)
	Delete(ctx context.Context, object string) error
}

type lifecycle interface {
	CheckDeliverable(ctx context.Context, orderID, sellerID uuid.UUID) error
	SubmitDelivery(ctx context.Context, update orders.DeliveryUpdate) (*models.Order, error)
}

// Upload is a file received from the client.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Content     io.Reader
}

// SubmitInput is one delivery attempt. Link and Note are raw form values.
type SubmitInput struct {
	OrderID  uuid.UUID
	SellerID uuid.UUID
	File     *Upload
	Link     *string
	Note     *string
}

// Result echoes the stored delivery artifacts.
type Result struct {
	OrderID         uuid.UUID         `json:"order_id"`
	Status          enums.OrderStatus `json:"status"`
	DeliveredAt     *time.Time        `json:"delivered_at"`
	DeliveryFileURL *string           `json:"delivery_file_url"`
	DeliveryLink    *string           `json:"delivery_link"`
	DeliveryNote    *string           `json:"delivery_note"`
}

type Service interface {
	Submit(ctx context.Context, input SubmitInput) (*Result, error)
}

type ServiceParams struct {
	Orders        lifecycle
	Blobs         BlobStore
	MaxFileBytes  int64
	MaxNoteLength int
	ObjectPrefix  string
	Logger        *logger.Logger
}

type service struct {
	orders  lifecycle
	blobs   BlobStore
	maxFile int64
	maxNote int
	prefix  string
	logg    *logger.Logger
}

func NewService(p ServiceParams) (Service, error) {
	if p.Orders == nil {
		return nil, fmt.Errorf("order lifecycle required")
	}
	if p.Blobs == nil {
		return nil, fmt.Errorf("blob store required")
	}
	svc := &service{
		orders:  p.Orders,
		blobs:   p.Blobs,
		maxFile: p.MaxFileBytes,
		maxNote: p.MaxNoteLength,
		prefix:  strings.Trim(strings.TrimSpace(p.ObjectPrefix), "/"),
		logg:    p.Logger,
	}
	if svc.maxFile <= 0 {
		svc.maxFile = defaultMaxFileSize
	}
	if svc.maxNote <= 0 {
		svc.maxNote = defaultMaxNote
	}
	if svc.prefix == "" {
		svc.prefix = defaultPrefix
	}
	return svc, nil
}

type linkFields struct {
	Link string `validate:"required,http_url"`
}

func (s *service) Submit(ctx context.Context, input SubmitInput) (*Result, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.SellerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	link, err := s.normalizeLink(input.Link)
	if err != nil {
		return nil, err
	}
	note, err := s.normalizeNote(input.Note)
	if err != nil {
		return nil, err
	}
	if input.File == nil && link == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "provide a delivery file or a delivery link")
	}

	var content io.Reader
	if input.File != nil {
		content, err = s.checkFile(input.File)
		if err != nil {
			return nil, err
		}
	}

	if err := s.orders.CheckDeliverable(ctx, input.OrderID, input.SellerID); err != nil {
		return nil, err
	}

	update := orders.DeliveryUpdate{
		OrderID:  input.OrderID,
		SellerID: input.SellerID,
		Link:     link,
		Note:     note,
	}

	var object string
	if content != nil {
		object = path.Join(s.prefix, input.OrderID.String(), uuid.NewString()+".pdf")
		fileURL, err := s.blobs.Upload(ctx, object, pdfMIME, content)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upload delivery file")
		}
		update.FileURL = &fileURL
	}

	order, err := s.orders.SubmitDelivery(ctx, update)
	if err != nil {
		if object != "" {
			s.cleanup(ctx, input.OrderID, object)
		}
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(s.logg.WithOrderID(ctx, order.ID.String()), map[string]any{
			"has_file": update.FileURL != nil,
			"has_link": link != nil,
		})
		s.logg.Info(logCtx, "delivery.submitted")
	}

	return &Result{
		OrderID:         order.ID,
		Status:          order.Status,
		DeliveredAt:     order.DeliveredAt,
		DeliveryFileURL: order.DeliveryFileURL,
		DeliveryLink:    order.DeliveryLink,
		DeliveryNote:    order.DeliveryNote,
	}, nil
}

func (s *service) normalizeLink(raw *string) (*string, error) {
	if raw == nil {
		return nil, nil
	}
	link := strings.TrimSpace(*raw)
	if link == "" {
		return nil, nil
	}
	if utf8.RuneCountInString(link) > maxLinkLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("delivery_link must be at most %d characters", maxLinkLength))
	}
	if err := validate.Struct(linkFields{Link: link}); err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "delivery_link must be a valid http(s) URL")
	}
	return &link, nil
}

func (s *service) normalizeNote(raw *string) (*string, error) {
	if raw == nil {
		return nil, nil
	}
	note := strings.TrimSpace(*raw)
	if utf8.RuneCountInString(note) > s.maxNote {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("delivery_note must be at most %d characters", s.maxNote))
	}
	if note == "" {
		return nil, nil
	}
	return &note, nil
}

// checkFile validates name, size and content type and returns a reader that
// replays the sniffed prefix.
func (s *service) checkFile(file *Upload) (io.Reader, error) {
	if file.Content == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "delivery_file is empty")
	}
	if !strings.HasSuffix(strings.ToLower(strings.TrimSpace(file.Filename)), ".pdf") {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "delivery_file must be a PDF")
	}
	if file.Size > s.maxFile {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("delivery_file exceeds %d MB", s.maxFile>>20)).
			WithDetails(map[string]any{"max_bytes": s.maxFile, "size": file.Size})
	}

	head := make([]byte, sniffBytes)
	n, err := io.ReadFull(file.Content, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read delivery_file")
	}
	head = head[:n]
	if n == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "delivery_file is empty")
	}

	declared := strings.ToLower(strings.TrimSpace(strings.Split(file.ContentType, ";")[0]))
	if declared != pdfMIME && !mimetype.Detect(head).Is(pdfMIME) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "delivery_file must be a PDF")
	}

	// Size comes from the client; the stream is capped too.
	body := io.MultiReader(bytes.NewReader(head), file.Content)
	return &cappedReader{r: io.LimitReader(body, s.maxFile+1), max: s.maxFile}, nil
}

func (s *service) cleanup(ctx context.Context, orderID uuid.UUID, object string) {
	if err := s.blobs.Delete(ctx, object); err != nil && s.logg != nil {
		logCtx := s.logg.WithFields(s.logg.WithOrderID(ctx, orderID.String()), map[string]any{"object": object})
		s.logg.Error(logCtx, "delivery.cleanup_failed", err)
	}
}

type cappedReader struct {
	r    io.Reader
	max  int64
	read int64
}

func (c *cappedReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.read += int64(n)
	if c.read > c.max {
		return n, fmt.Errorf("delivery file larger than %d bytes", c.max)
	}
	return n, err
}
