package ipfs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/couchbc/rent/common"
	"github.com/couchbc/rent/crypto"
)

// ErrNotFound is returned when no content exists at the requested address
var ErrNotFound = errors.New("content not found")

// ErrStoreUnavailable is the retryable outcome for transport failures and
// bounded-timeout expiry against the store backend
var ErrStoreUnavailable = errors.New("content store unavailable")

// API is the collaborator surface of the content-addressed store: add bytes,
// get bytes, addressed by base58 multihash
type API interface {
	FilesAdd(data []byte) (string, error)
	FilesGet(ctx context.Context, addr string) ([]byte, error)
}

// Client uploads and downloads JSON-encodable documents, optionally
// encrypting them, addressed by the compact hex content hash used on-ledger
type Client struct {
	api     API
	timeout time.Duration
}

// NewClient initializes a store client against the configured HTTP API
func NewClient() *Client {
	return &Client{
		api:     newHTTPAPI(common.ContentStoreURL),
		timeout: common.ContentStoreTimeout,
	}
}

// NewClientWithAPI initializes a store client against the given API; used by
// tests and alternate backends
func NewClientWithAPI(api API, timeout time.Duration) *Client {
	return &Client{
		api:     api,
		timeout: timeout,
	}
}

// Upload JSON-serializes data, optionally encrypts it for the given public
// keys, stores the bytes and returns the hex content hash. Serialization is
// deterministic for struct types (fixed field order), which keeps repeated
// hash derivations stable.
func (c *Client) Upload(data interface{}, encryptFor ...[]byte) (string, error) {
	buf, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to serialize data for upload; %s", err.Error())
	}

	payload := string(buf)
	if len(encryptFor) > 0 {
		payload, err = crypto.EncryptString(payload, encryptFor...)
		if err != nil {
			return "", err
		}
	}

	addr, err := c.api.FilesAdd([]byte(payload))
	if err != nil {
		common.Log.Warningf("failed to upload %d bytes to content store; %s", len(payload), err.Error())
		return "", ErrStoreUnavailable
	}

	common.Log.Debugf("uploaded %d bytes to content store: %s", len(payload), addr)
	return AddrToHexHash(addr)
}

// Download fetches the content at the given hex hash, optionally decrypts it
// with the given private key, and unmarshals the JSON document into out.
// Downloads are bounded by the configured timeout; expiry surfaces as the
// retryable ErrStoreUnavailable.
func (c *Client) Download(hexHash string, decryptWith []byte, out interface{}) error {
	addr, err := HexHashToAddr(hexHash)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	buf, err := c.api.FilesGet(ctx, addr)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		common.Log.Warningf("failed to download content %s; %s", hexHash, err.Error())
		return ErrStoreUnavailable
	}

	payload := string(buf)
	if decryptWith != nil {
		plaintext, ok := crypto.DecryptString(payload, decryptWith)
		if !ok {
			return crypto.ErrDecryptionFailed
		}
		payload = plaintext
	}

	if err := json.Unmarshal([]byte(payload), out); err != nil {
		return fmt.Errorf("failed to unmarshal downloaded content %s; %s", hexHash, err.Error())
	}
	return nil
}

// httpAPI talks to the store's HTTP gateway (files add/get endpoints)
type httpAPI struct {
	baseURL string
	client  *http.Client
}

func newHTTPAPI(baseURL string) *httpAPI {
	return &httpAPI{
		baseURL: baseURL,
		client:  &http.Client{},
	}
}

type filesAddResponse struct {
	Name string `json:"Name"`
	Hash string `json:"Hash"`
}

func (a *httpAPI) FilesAdd(data []byte) (string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "blob")
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	resp, err := a.client.Post(a.baseURL+"/api/v0/add", writer.FormDataContentType(), body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("content store add returned status %d", resp.StatusCode)
	}

	added := &filesAddResponse{}
	if err := json.NewDecoder(resp.Body).Decode(added); err != nil {
		return "", err
	}
	return added.Hash, nil
}

func (a *httpAPI) FilesGet(ctx context.Context, addr string) ([]byte, error) {
	endpoint := a.baseURL + "/api/v0/cat?arg=" + url.QueryEscape(addr)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("content store cat returned status %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

// InMemoryAPI is a map-backed store API used by tests and local development;
// addresses are derived with the same sha2-256 multihash as the real backend
type InMemoryAPI struct {
	mutex sync.RWMutex
	blobs map[string][]byte
}

// NewInMemoryAPI initializes an empty in-memory store API
func NewInMemoryAPI() *InMemoryAPI {
	return &InMemoryAPI{
		blobs: map[string][]byte{},
	}
}

// FilesAdd stores the given bytes and returns their base58 content address
func (a *InMemoryAPI) FilesAdd(data []byte) (string, error) {
	addr, err := HexHashToAddr("0x" + common.SHA256(string(data)))
	if err != nil {
		return "", err
	}

	a.mutex.Lock()
	defer a.mutex.Unlock()
	a.blobs[addr] = append([]byte(nil), data...)
	return addr, nil
}

// FilesGet returns the bytes stored at the given content address
func (a *InMemoryAPI) FilesGet(ctx context.Context, addr string) ([]byte, error) {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	if data, ok := a.blobs[addr]; ok {
		return append([]byte(nil), data...), nil
	}
	return nil, ErrNotFound
}
