package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"mime/multipart"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/didierodjou/televkvpn/internal/authprompt"
	"github.com/didierodjou/televkvpn/internal/metrics"
	"github.com/didierodjou/televkvpn/internal/obslog"
	"github.com/didierodjou/televkvpn/pkg/tunnelcrypto"
)

const (
	vkAPIBase  = "https://api.vk.com/method"
	vkAPIVer   = "5.131"
	vkErrFlood   = 9
	vkErrCaptcha = 14
)

// VKConfig configures a VKTransport.
type VKConfig struct {
	Token  string
	PeerID string
	AppID  int

	// Login/Password are carried in the configuration but not used: Init
	// requires Token and fails without it, and there is no password login
	// or login-time 2FA/CAPTCHA prompt in this transport.
	Login    string
	Password string

	Compression   bool
	Key           *tunnelcrypto.Box
	SendQueueCap  int
	BatchInterval time.Duration
	MaxBatchSize  int

	AuthPrompt authprompt.Handler
	Dedupe     Dedupe
	Log        *obslog.Logger
}

// VKTransport implements Transport against the VK API's docs upload +
// messages.send + long-poll surface. Upload concurrency is fixed at 1:
// VK's CAPTCHA challenge, when it occurs, must be resolved before any
// other upload proceeds, so there is nothing to gain from parallelism.
type VKTransport struct {
	cfg      VKConfig
	http     *http.Client
	pipeline Pipeline
	batcher  *Batcher
	recv     RecvFunc

	// uploadMu serializes upload, holding VK upload concurrency at 1.
	uploadMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewVKTransport constructs a VKTransport.
func NewVKTransport(cfg VKConfig) *VKTransport {
	if cfg.SendQueueCap <= 0 {
		cfg.SendQueueCap = 500
	}
	if cfg.Dedupe == nil {
		cfg.Dedupe = NewLRUDedupe(2048)
	}
	return &VKTransport{
		cfg:  cfg,
		http: &http.Client{Timeout: 30 * time.Second},
		pipeline: Pipeline{
			Box:         cfg.Key,
			Compression: cfg.Compression,
			Log:         cfg.Log,
		},
	}
}

// Init requires Token and PeerID, checks the token by fetching the
// long-poll server, and starts the sender and long-poll receiver loops.
// It does not log in with Login/Password.
func (t *VKTransport) Init(ctx context.Context, recv RecvFunc, role Role) error {
	if t.cfg.Token == "" {
		return fmt.Errorf("%w: vk.token is required", ErrConfigInvalid)
	}
	if t.cfg.PeerID == "" {
		return fmt.Errorf("%w: vk.peer_id is required", ErrConfigInvalid)
	}

	t.ctx, t.cancel = context.WithCancel(ctx)
	t.recv = recv

	server, err := t.getLongPollServer(t.ctx)
	if err != nil {
		return fmt.Errorf("%w: getLongPollServer: %v", ErrCarrierAuth, err)
	}

	t.batcher = NewBatcher(t.cfg.SendQueueCap, t.cfg.MaxBatchSize, t.cfg.BatchInterval, t.upload)
	t.batcher.OnDrop(metrics.IncQueueDrops)
	t.batcher.Start()

	t.wg.Add(1)
	go t.pollLoop(server)

	return nil
}

func (t *VKTransport) Send(packet []byte) {
	t.batcher.Enqueue(packet)
	metrics.SetSendQueueDepth(t.batcher.Depth())
}

func (t *VKTransport) Disconnect() error {
	if t.cancel != nil {
		t.cancel()
	}
	if t.batcher != nil {
		t.batcher.Stop()
	}
	t.wg.Wait()
	return nil
}

type vkAPIError struct {
	Code        int    `json:"error_code"`
	Message     string `json:"error_msg"`
	CaptchaSID  string `json:"captcha_sid"`
	CaptchaImg  string `json:"captcha_img"`
}

type vkAPIResponse struct {
	Response json.RawMessage `json:"response"`
	Error    *vkAPIError     `json:"error"`
}

// call performs one VK API method invocation with the given form values,
// adding access_token and v automatically. captchaSID/captchaKey, when
// non-empty, are added to satisfy a pending CAPTCHA challenge.
func (t *VKTransport) call(ctx context.Context, method string, values url.Values, captchaSID, captchaKey string) (json.RawMessage, error) {
	if values == nil {
		values = url.Values{}
	}
	values.Set("access_token", t.cfg.Token)
	values.Set("v", vkAPIVer)
	if captchaSID != "" {
		values.Set("captcha_sid", captchaSID)
		values.Set("captcha_key", captchaKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, vkAPIBase+"/"+method, bytes.NewBufferString(values.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var body vkAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", method, err)
	}
	if body.Error != nil {
		return nil, body.Error
	}
	return body.Response, nil
}

func (e *vkAPIError) Error() string {
	return fmt.Sprintf("vk api error %d: %s", e.Code, e.Message)
}

// callWithRetry implements the carrier-specific error handling,
// shared by every VK call on the upload path: CAPTCHA prompts the user and
// retries with the solved key; flood control sleeps 1s and retries; any
// other error is terminal for this call.
func (t *VKTransport) callWithRetry(ctx context.Context, method string, values url.Values) (json.RawMessage, error) {
	const maxAttempts = 5
	var captchaSID, captchaKey string

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err := t.call(ctx, method, cloneValues(values), captchaSID, captchaKey)
		if err == nil {
			return result, nil
		}

		vkErr, ok := err.(*vkAPIError)
		if !ok {
			return nil, err
		}

		switch vkErr.Code {
		case vkErrCaptcha:
			metrics.IncCaptchaChallenge()
			if t.cfg.AuthPrompt == nil {
				return nil, fmt.Errorf("captcha required but no prompt handler configured")
			}
			req := authprompt.NewRequest(authprompt.Captcha, vkErr.CaptchaImg)
			t.cfg.AuthPrompt(req)
			answer, err := req.Await(ctx)
			if err != nil {
				return nil, fmt.Errorf("captcha cancelled: %w", err)
			}
			captchaSID = vkErr.CaptchaSID
			captchaKey = answer
			continue

		case vkErrFlood:
			metrics.IncFloodRetry()
			t.cfg.Log.Warnf("vk: flood control, retry %d/%d", attempt, maxAttempts)
			select {
			case <-time.After(time.Second):
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			}

		default:
			return nil, vkErr
		}
	}

	return nil, fmt.Errorf("retries exhausted for %s", method)
}

func cloneValues(v url.Values) url.Values {
	out := url.Values{}
	for k, vals := range v {
		out[k] = append([]string(nil), vals...)
	}
	return out
}

// upload seals one batch and posts it through VK's docs-upload dance:
// get an upload server, multipart-POST the file, save the document, then
// send it as a message attachment.
func (t *VKTransport) upload(batch []byte) {
	t.uploadMu.Lock()
	defer t.uploadMu.Unlock()

	sealed, err := t.pipeline.Seal(batch)
	if err != nil {
		t.cfg.Log.Warnf("vk: %v", err)
		metrics.IncBatchesDropped()
		return
	}

	uploadURL, err := t.getUploadServer(t.ctx)
	if err != nil {
		t.cfg.Log.Warnf("vk: getMessagesUploadServer failed, dropping batch: %v", err)
		metrics.IncBatchesDropped()
		return
	}

	file, owner, err := t.postFile(t.ctx, uploadURL, sealed)
	if err != nil {
		t.cfg.Log.Warnf("vk: document upload failed, dropping batch: %v", err)
		metrics.IncBatchesDropped()
		return
	}

	attachment, err := t.saveDoc(t.ctx, file, owner)
	if err != nil {
		t.cfg.Log.Warnf("vk: docs.save failed, dropping batch: %v", err)
		metrics.IncBatchesDropped()
		return
	}

	if err := t.sendMessage(t.ctx, attachment); err != nil {
		t.cfg.Log.Warnf("vk: messages.send failed, dropping batch: %v", err)
		metrics.IncBatchesDropped()
		return
	}

	metrics.IncBatchesUploaded()
	metrics.AddBytesSent(len(sealed))
}

func (t *VKTransport) getUploadServer(ctx context.Context) (string, error) {
	values := url.Values{"peer_id": {t.cfg.PeerID}, "type": {"doc"}}
	raw, err := t.callWithRetry(ctx, "docs.getMessagesUploadServer", values)
	if err != nil {
		return "", err
	}
	var result struct {
		UploadURL string `json:"upload_url"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", err
	}
	return result.UploadURL, nil
}

func (t *VKTransport) postFile(ctx context.Context, uploadURL string, data []byte) (string, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", "d")
	if err != nil {
		return "", "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", "", err
	}
	if err := w.Close(); err != nil {
		return "", "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, &buf)
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := t.http.Do(req)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", err
	}

	var result struct {
		File string `json:"file"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", "", err
	}
	return result.File, "", nil
}

func (t *VKTransport) saveDoc(ctx context.Context, file, _ string) (string, error) {
	values := url.Values{"file": {file}, "title": {"d"}}
	raw, err := t.callWithRetry(ctx, "docs.save", values)
	if err != nil {
		return "", err
	}
	var result struct {
		Type string `json:"type"`
		Doc  struct {
			ID      int64 `json:"id"`
			OwnerID int64 `json:"owner_id"`
		} `json:"doc"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", err
	}
	return fmt.Sprintf("doc%d_%d", result.Doc.OwnerID, result.Doc.ID), nil
}

func (t *VKTransport) sendMessage(ctx context.Context, attachment string) error {
	values := url.Values{
		"peer_id":    {t.cfg.PeerID},
		"attachment": {attachment},
		"random_id":  {fmt.Sprintf("%d", rand.Int63())},
		"message":    {"."},
	}
	_, err := t.callWithRetry(ctx, "messages.send", values)
	return err
}

func (t *VKTransport) getLongPollServer(ctx context.Context) (*vkLongPollServer, error) {
	raw, err := t.call(ctx, "messages.getLongPollServer", url.Values{"lp_version": {"3"}}, "", "")
	if err != nil {
		return nil, err
	}
	var server vkLongPollServer
	if err := json.Unmarshal(raw, &server); err != nil {
		return nil, err
	}
	return &server, nil
}

type vkLongPollServer struct {
	Server string `json:"server"`
	Key    string `json:"key"`
	TS     string `json:"ts"`
}

// pollLoop long-polls VK's dedicated messaging server for new events, and
// for every event that is a new message to the configured peer carrying a
// document attachment, spawns a goroutine to fetch and dispatch it.
// Ordering between batches is not preserved.
func (t *VKTransport) pollLoop(server *vkLongPollServer) {
	defer t.wg.Done()

	ts := server.TS
	for {
		select {
		case <-t.ctx.Done():
			return
		default:
		}

		events, nextTS, err := t.longPollOnce(t.ctx, server, ts)
		if err != nil {
			if t.ctx.Err() != nil {
				return
			}
			t.cfg.Log.Warnf("vk: long poll failed, retrying: %v", err)
			select {
			case <-time.After(time.Second):
			case <-t.ctx.Done():
				return
			}
			continue
		}
		ts = nextTS

		for _, ev := range events {
			ev := ev
			t.wg.Add(1)
			go func() {
				defer t.wg.Done()
				t.handleEvent(ev)
			}()
		}
	}
}

func (t *VKTransport) longPollOnce(ctx context.Context, server *vkLongPollServer, ts string) ([][]interface{}, string, error) {
	u := fmt.Sprintf("https://%s?act=a_check&key=%s&ts=%s&wait=25&mode=2&version=3", server.Server, server.Key, ts)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, ts, err
	}
	resp, err := t.http.Do(req)
	if err != nil {
		return nil, ts, err
	}
	defer resp.Body.Close()

	var body struct {
		TS      string          `json:"ts"`
		Updates [][]interface{} `json:"updates"`
		Failed  int             `json:"failed"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, ts, fmt.Errorf("decode long poll response: %w", err)
	}
	if body.Failed != 0 {
		// ts out of date or key expired; re-acquire the server on the
		// caller's next iteration.
		refreshed, err := t.getLongPollServer(ctx)
		if err != nil {
			return nil, ts, err
		}
		*server = *refreshed
		return nil, server.TS, nil
	}
	return body.Updates, body.TS, nil
}

// handleEvent fetches a long-poll "new message" event's document
// attachment, if any, and dispatches it. Event shape per VK long-poll v3:
// [4, message_id, flags, peer_id, timestamp, text, extra...]. Messages this
// account sent itself (outbox flag) and messages in any dialog other than
// the configured peer are skipped; the attachment itself is looked up with
// messages.getById.
func (t *VKTransport) handleEvent(ev []interface{}) {
	if len(ev) < 4 {
		return
	}
	code, ok := ev[0].(float64)
	if !ok || int(code) != 4 {
		return
	}
	messageID, ok := ev[1].(float64)
	if !ok {
		return
	}
	if flags, ok := ev[2].(float64); !ok || int64(flags)&2 != 0 {
		return
	}
	if peer, ok := ev[3].(float64); !ok || fmt.Sprintf("%d", int64(peer)) != t.cfg.PeerID {
		return
	}

	dedupeKey := fmt.Sprintf("vk:%d", int64(messageID))
	if t.cfg.Dedupe.Seen(t.ctx, dedupeKey) {
		return
	}

	docURL, err := t.fetchAttachmentURL(t.ctx, int64(messageID))
	if err != nil || docURL == "" {
		return
	}

	data, err := t.downloadDoc(t.ctx, docURL)
	if err != nil {
		t.cfg.Log.Warnf("vk: download failed, dropping blob: %v", err)
		return
	}
	metrics.AddBytesReceived(len(data))

	t.pipeline.OpenAndDispatch(data, func(packet []byte) {
		t.recv(packet)
	})
}

func (t *VKTransport) fetchAttachmentURL(ctx context.Context, messageID int64) (string, error) {
	values := url.Values{"message_ids": {fmt.Sprintf("%d", messageID)}}
	raw, err := t.call(ctx, "messages.getById", values, "", "")
	if err != nil {
		return "", err
	}
	var result struct {
		Items []struct {
			Attachments []struct {
				Type string `json:"type"`
				Doc  struct {
					URL string `json:"url"`
				} `json:"doc"`
			} `json:"attachments"`
		} `json:"items"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", err
	}
	for _, item := range result.Items {
		for _, att := range item.Attachments {
			if att.Type == "doc" && att.Doc.URL != "" {
				return att.Doc.URL, nil
			}
		}
	}
	return "", nil
}

func (t *VKTransport) downloadDoc(ctx context.Context, docURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, docURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := t.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

var _ Transport = (*VKTransport)(nil)
