package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/didierodjou/televkvpn/internal/authprompt"
	"github.com/didierodjou/televkvpn/internal/metrics"
	"github.com/didierodjou/televkvpn/internal/obslog"
	"github.com/didierodjou/televkvpn/pkg/tunnelcrypto"
)

const telegramAPIBase = "https://api.telegram.org"

// TelegramConfig configures a TelegramTransport.
type TelegramConfig struct {
	BotToken string
	ChatID   string

	// APIID/APIHash are present for a future MTProto user-mode login
	// (phone/code/2FA); bot-token mode is what actually
	// ships today and never prompts.
	APIID   int
	APIHash string

	Compression   bool
	Key           *tunnelcrypto.Box
	SendQueueCap  int
	BatchInterval time.Duration
	MaxBatchSize  int
	// UploadConcurrency bounds in-flight uploads; spec calls for ~5 on
	// Telegram, against VK's hard 1.
	UploadConcurrency int

	AuthPrompt authprompt.Handler
	Dedupe     Dedupe
	Log        *obslog.Logger
}

// TelegramTransport implements Transport against the public Bot API's
// sendDocument/getUpdates/getFile surface.
type TelegramTransport struct {
	cfg      TelegramConfig
	http     *http.Client
	pipeline Pipeline
	batcher  *Batcher
	sem      chan struct{}
	recv     RecvFunc

	botUserID int64
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewTelegramTransport constructs a TelegramTransport. Init must be called
// before Send/Disconnect do anything useful.
func NewTelegramTransport(cfg TelegramConfig) *TelegramTransport {
	if cfg.UploadConcurrency <= 0 {
		cfg.UploadConcurrency = 5
	}
	if cfg.SendQueueCap <= 0 {
		cfg.SendQueueCap = 5000
	}
	if cfg.Dedupe == nil {
		cfg.Dedupe = NewLRUDedupe(4096)
	}
	return &TelegramTransport{
		cfg:  cfg,
		http: &http.Client{Timeout: 30 * time.Second},
		pipeline: Pipeline{
			Box:         cfg.Key,
			Compression: cfg.Compression,
			Log:         cfg.Log,
		},
		sem: make(chan struct{}, cfg.UploadConcurrency),
	}
}

// Init verifies the bot token via getMe (so the receive loop can recognize
// and ignore the bot's own messages) and starts the sender/receiver loops.
// Bot-token mode never touches AuthPrompt; it is wired only for a future
// user-mode login.
func (t *TelegramTransport) Init(ctx context.Context, recv RecvFunc, role Role) error {
	if t.cfg.BotToken == "" {
		return fmt.Errorf("%w: telegram bot_token is required", ErrConfigInvalid)
	}
	if t.cfg.ChatID == "" {
		return fmt.Errorf("%w: telegram chat_id is required", ErrConfigInvalid)
	}

	t.ctx, t.cancel = context.WithCancel(ctx)
	t.recv = recv

	me, err := t.getMe(t.ctx)
	if err != nil {
		return fmt.Errorf("%w: getMe: %v", ErrCarrierAuth, err)
	}
	t.botUserID = me

	t.batcher = NewBatcher(t.cfg.SendQueueCap, t.cfg.MaxBatchSize, t.cfg.BatchInterval, t.upload)
	t.batcher.OnDrop(metrics.IncQueueDrops)
	t.batcher.Start()

	t.wg.Add(1)
	go t.pollLoop()

	return nil
}

// Send enqueues packet for batched upload.
func (t *TelegramTransport) Send(packet []byte) {
	t.batcher.Enqueue(packet)
	metrics.SetSendQueueDepth(t.batcher.Depth())
}

// Disconnect stops the sender and receiver loops. In-flight uploads are
// not awaited.
func (t *TelegramTransport) Disconnect() error {
	if t.cancel != nil {
		t.cancel()
	}
	if t.batcher != nil {
		t.batcher.Stop()
	}
	t.wg.Wait()
	return nil
}

func (t *TelegramTransport) apiURL(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", telegramAPIBase, t.cfg.BotToken, method)
}

type telegramAPIResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
	Parameters  struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

func (t *TelegramTransport) getMe(ctx context.Context) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.apiURL("getMe"), nil)
	if err != nil {
		return 0, err
	}
	resp, err := t.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	var body telegramAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("decode getMe response: %w", err)
	}
	if !body.OK {
		return 0, fmt.Errorf("getMe: %s", body.Description)
	}

	var user struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(body.Result, &user); err != nil {
		return 0, fmt.Errorf("decode getMe result: %w", err)
	}
	return user.ID, nil
}

// upload seals one batch and posts it as a document. Retried only on
// flood/rate-limit; any other failure drops the batch.
func (t *TelegramTransport) upload(batch []byte) {
	t.sem <- struct{}{}
	defer func() { <-t.sem }()

	sealed, err := t.pipeline.Seal(batch)
	if err != nil {
		t.cfg.Log.Warnf("telegram: %v", err)
		metrics.IncBatchesDropped()
		return
	}

	const maxAttempts = 5
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := t.sendDocument(t.ctx, sealed)
		if err == nil {
			metrics.IncBatchesUploaded()
			metrics.AddBytesSent(len(sealed))
			return
		}

		if wait, ok := floodWait(err); ok {
			metrics.IncFloodRetry()
			t.cfg.Log.Warnf("telegram: flood control, retry %d/%d after %v", attempt, maxAttempts, wait)
			select {
			case <-time.After(wait):
				continue
			case <-t.ctx.Done():
				return
			}
		}

		t.cfg.Log.Warnf("telegram: upload failed, dropping batch: %v", err)
		metrics.IncBatchesDropped()
		return
	}

	t.cfg.Log.Warnf("telegram: upload retries exhausted, dropping batch")
	metrics.IncBatchesDropped()
}

type floodWaitError struct {
	after time.Duration
}

func (e *floodWaitError) Error() string { return fmt.Sprintf("flood wait %v", e.after) }

func floodWait(err error) (time.Duration, bool) {
	fw, ok := err.(*floodWaitError)
	if !ok {
		return 0, false
	}
	return fw.after, true
}

func (t *TelegramTransport) sendDocument(ctx context.Context, data []byte) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := w.WriteField("chat_id", t.cfg.ChatID); err != nil {
		return err
	}
	// Filename deliberately minimal; the document's content, not its name,
	// carries the tunnel's data.
	part, err := w.CreateFormFile("document", "d")
	if err != nil {
		return err
	}
	if _, err := part.Write(data); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.apiURL("sendDocument"), &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := t.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var body telegramAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decode sendDocument response: %w", err)
	}
	if !body.OK {
		if resp.StatusCode == http.StatusTooManyRequests || body.ErrorCode == 429 {
			wait := time.Duration(body.Parameters.RetryAfter) * time.Second
			if wait <= 0 {
				wait = time.Second
			}
			return &floodWaitError{after: wait}
		}
		return fmt.Errorf("sendDocument: %s", body.Description)
	}
	return nil
}

// pollLoop long-polls getUpdates, dispatching any new message in the bound
// chat that carries a document attachment and was not sent by the bot
// itself. Each message is processed in its own goroutine: ordering across
// batches is not guaranteed, only within one.
func (t *TelegramTransport) pollLoop() {
	defer t.wg.Done()

	var offset int64
	for {
		select {
		case <-t.ctx.Done():
			return
		default:
		}

		updates, next, err := t.getUpdates(t.ctx, offset)
		if err != nil {
			if t.ctx.Err() != nil {
				return
			}
			t.cfg.Log.Warnf("telegram: getUpdates failed, retrying: %v", err)
			select {
			case <-time.After(time.Second):
			case <-t.ctx.Done():
				return
			}
			continue
		}
		offset = next

		for _, u := range updates {
			u := u
			if u.Message.From.ID == t.botUserID {
				continue
			}
			if u.Message.Document.FileID == "" {
				continue
			}
			if t.cfg.ChatID != "" && strconvItoa64(u.Message.Chat.ID) != t.cfg.ChatID {
				continue
			}
			t.wg.Add(1)
			go func() {
				defer t.wg.Done()
				t.handleIncomingDocument(u)
			}()
		}
	}
}

func strconvItoa64(v int64) string { return strconv.FormatInt(v, 10) }

type telegramUpdate struct {
	UpdateID int64 `json:"update_id"`
	Message  struct {
		MessageID int64 `json:"message_id"`
		From      struct {
			ID int64 `json:"id"`
		} `json:"from"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
		Document struct {
			FileID string `json:"file_id"`
		} `json:"document"`
	} `json:"message"`
}

func (t *TelegramTransport) getUpdates(ctx context.Context, offset int64) ([]telegramUpdate, int64, error) {
	url := fmt.Sprintf("%s?timeout=30&offset=%d", t.apiURL("getUpdates"), offset)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, offset, err
	}

	resp, err := t.http.Do(req)
	if err != nil {
		return nil, offset, err
	}
	defer resp.Body.Close()

	var body struct {
		OK     bool             `json:"ok"`
		Result []telegramUpdate `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, offset, fmt.Errorf("decode getUpdates response: %w", err)
	}
	if !body.OK {
		return nil, offset, fmt.Errorf("getUpdates returned not-ok")
	}

	next := offset
	for _, u := range body.Result {
		if u.UpdateID >= next {
			next = u.UpdateID + 1
		}
	}
	return body.Result, next, nil
}

func (t *TelegramTransport) handleIncomingDocument(u telegramUpdate) {
	dedupeKey := fmt.Sprintf("tg:%d", u.Message.MessageID)
	if t.cfg.Dedupe.Seen(t.ctx, dedupeKey) {
		return
	}

	data, err := t.downloadFile(t.ctx, u.Message.Document.FileID)
	if err != nil {
		t.cfg.Log.Warnf("telegram: download failed, dropping blob: %v", err)
		return
	}
	metrics.AddBytesReceived(len(data))

	t.pipeline.OpenAndDispatch(data, func(packet []byte) {
		t.recv(packet)
	})
}

func (t *TelegramTransport) downloadFile(ctx context.Context, fileID string) ([]byte, error) {
	getFileURL := fmt.Sprintf("%s?file_id=%s", t.apiURL("getFile"), fileID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, getFileURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := t.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var body struct {
		OK     bool `json:"ok"`
		Result struct {
			FilePath string `json:"file_path"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode getFile response: %w", err)
	}
	if !body.OK {
		return nil, fmt.Errorf("getFile returned not-ok")
	}

	downloadURL := fmt.Sprintf("%s/file/bot%s/%s", telegramAPIBase, t.cfg.BotToken, body.Result.FilePath)
	dreq, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return nil, err
	}
	dresp, err := t.http.Do(dreq)
	if err != nil {
		return nil, err
	}
	defer dresp.Body.Close()

	return io.ReadAll(dresp.Body)
}

var _ Transport = (*TelegramTransport)(nil)
