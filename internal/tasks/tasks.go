package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"

	"github.com/hibiken/asynq"
	"github.com/nfnt/resize"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/gmarko-dV/Integrador/internal/email"
	"github.com/gmarko-dV/Integrador/internal/logger"
	"github.com/gmarko-dV/Integrador/internal/storage"
)

// Task types.
const (
	TypeNotificationEmail = "notificacion:email"
	TypeImageProcess      = "anuncio:imagen:process"
)

// Queue names.
const (
	QueueDefault = "default"
	QueueImages  = "images"
)

// RedisOpt derives asynq connection options from an existing Redis client.
func RedisOpt(rdb *redis.Client) asynq.RedisClientOpt {
	opts := rdb.Options()
	return asynq.RedisClientOpt{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}
}

// --- Task Client (Enqueuing tasks) ---

func NewClient(rdb *redis.Client) *asynq.Client {
	return asynq.NewClient(RedisOpt(rdb))
}

// Enqueuer is the subset of *asynq.Client used by Distributor.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Distributor enqueues background work. It satisfies services.BackgroundJobs.
type Distributor struct {
	client Enqueuer
	log    *zap.Logger
}

func NewDistributor(client Enqueuer, log *zap.Logger) *Distributor {
	return &Distributor{client: client, log: logger.OrNop(log)}
}

// NotificationEmailPayload is the body of a TypeNotificationEmail task.
type NotificationEmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// ImageTaskPayload is the body of a TypeImageProcess task.
type ImageTaskPayload struct {
	AnuncioID int64  `json:"anuncio_id"`
	URL       string `json:"url"`
}

// NotifyVendedor queues an email to a seller. A blank address is a no-op.
func (d *Distributor) NotifyVendedor(ctx context.Context, to, subject, body string) error {
	if to == "" {
		return nil
	}
	return d.enqueue(ctx, TypeNotificationEmail, NotificationEmailPayload{To: to, Subject: subject, Body: body},
		asynq.Queue(QueueDefault), asynq.MaxRetry(5))
}

// ProcessImage queues normalization of a stored listing photo.
func (d *Distributor) ProcessImage(ctx context.Context, anuncioID int64, url string) error {
	return d.enqueue(ctx, TypeImageProcess, ImageTaskPayload{AnuncioID: anuncioID, URL: url},
		asynq.Queue(QueueImages), asynq.MaxRetry(3))
}

func (d *Distributor) enqueue(ctx context.Context, taskType string, payload any, opts ...asynq.Option) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", taskType, err)
	}
	info, err := d.client.EnqueueContext(ctx, asynq.NewTask(taskType, data), opts...)
	if err != nil {
		return fmt.Errorf("failed to enqueue %s: %w", taskType, err)
	}
	d.log.Debug("Task enqueued", zap.String("type", taskType), zap.String("task_id", info.ID), zap.String("queue", info.Queue))
	return nil
}

// --- Task Server (Processing tasks) ---

// TaskProcessor handles the processing of tasks.
type TaskProcessor struct {
	emailSender  email.Sender
	images       storage.ImageStore
	maxDimension uint
	maxSizeBytes int64
	log          *zap.Logger
}

func NewTaskProcessor(emailSender email.Sender, images storage.ImageStore, maxDimension int, maxSizeBytes int64, log *zap.Logger) *TaskProcessor {
	return &TaskProcessor{
		emailSender:  emailSender,
		images:       images,
		maxDimension: uint(maxDimension),
		maxSizeBytes: maxSizeBytes,
		log:          logger.OrNop(log),
	}
}

// SetupServer configures the asynq server and its handlers. The caller runs
// it with srv.Start(mux) and stops it with srv.Shutdown().
func SetupServer(opt asynq.RedisConnOpt, processor *TaskProcessor, log *zap.Logger) (*asynq.Server, *asynq.ServeMux) {
	log = logger.OrNop(log)
	srv := asynq.NewServer(
		opt,
		asynq.Config{
			Concurrency: 4,
			Queues: map[string]int{
				QueueDefault: 3,
				QueueImages:  2,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Error("Task failed",
					zap.String("type", task.Type()),
					zap.ByteString("payload", task.Payload()),
					zap.Error(err))
			}),
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeNotificationEmail, processor.HandleNotificationEmailTask)
	mux.HandleFunc(TypeImageProcess, processor.HandleImageProcessTask)
	return srv, mux
}

// --- Task Handlers ---

func (p *TaskProcessor) HandleNotificationEmailTask(ctx context.Context, t *asynq.Task) error {
	var payload NotificationEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal email task payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.To == "" {
		return fmt.Errorf("email task without recipient: %w", asynq.SkipRetry)
	}

	err := p.emailSender.Send(ctx, email.Message{
		To:      []string{payload.To},
		Subject: payload.Subject,
		Body:    payload.Body,
	})
	if err != nil {
		return fmt.Errorf("failed to send email to %s: %w", payload.To, err)
	}
	p.log.Info("Notification email sent", zap.String("to", payload.To))
	return nil
}

// HandleImageProcessTask shrinks a stored photo that exceeds the configured
// dimension and writes it back in place.
func (p *TaskProcessor) HandleImageProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload ImageTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal image task payload: %v: %w", err, asynq.SkipRetry)
	}
	log := p.log.With(zap.Int64("anuncio_id", payload.AnuncioID), zap.String("url", payload.URL))

	rc, err := p.images.Open(ctx, payload.URL)
	if errors.Is(err, storage.ErrImageNotFound) {
		// Listing was deleted or images replaced before the task ran.
		log.Info("Image no longer stored, skipping")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open image %s: %w", payload.URL, err)
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return fmt.Errorf("failed to read image %s: %w", payload.URL, err)
	}

	out, contentType, changed, err := p.normalize(data)
	if err != nil {
		log.Warn("Image left as uploaded", zap.Error(err))
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	if !changed {
		log.Debug("Image within limits")
		return nil
	}

	if err := p.images.Replace(ctx, payload.URL, contentType, out); err != nil {
		return fmt.Errorf("failed to store processed image %s: %w", payload.URL, err)
	}
	log.Info("Image resized", zap.Int("bytes_before", len(data)), zap.Int("bytes_after", len(out)))
	return nil
}

// normalize decodes an image and, if either side exceeds maxDimension,
// returns it re-encoded in its original format.
func (p *TaskProcessor) normalize(data []byte) ([]byte, string, bool, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", false, fmt.Errorf("unsupported image format or corrupt image: %w", err)
	}
	bounds := img.Bounds()
	if p.maxDimension == 0 || (uint(bounds.Dx()) <= p.maxDimension && uint(bounds.Dy()) <= p.maxDimension) {
		return data, "", false, nil
	}

	resized := resize.Thumbnail(p.maxDimension, p.maxDimension, img, resize.Lanczos3)
	var buf bytes.Buffer
	contentType := "image/jpeg"
	switch format {
	case "png":
		contentType = "image/png"
		err = png.Encode(&buf, resized)
	case "gif":
		contentType = "image/gif"
		err = gif.Encode(&buf, resized, nil)
	default:
		err = jpeg.Encode(&buf, resized, &jpeg.Options{Quality: 85})
	}
	if err != nil {
		return nil, "", false, fmt.Errorf("failed to re-encode resized image: %w", err)
	}
	if p.maxSizeBytes > 0 && int64(buf.Len()) > p.maxSizeBytes {
		return nil, "", false, fmt.Errorf("resized image still exceeds max size (%d > %d bytes)", buf.Len(), p.maxSizeBytes)
	}
	return buf.Bytes(), contentType, true, nil
}
