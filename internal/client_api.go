package internal

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var (
	httpTimeout     = 10 * time.Second
	transferTimeout = 10 * time.Minute
)

// uploadField is the multipart field the server stores files from by default.
const uploadField = "files"

// apiClient talks to the REST half of a ShareHub server.
type apiClient struct {
	base     string
	http     *http.Client
	transfer *http.Client
}

func newAPIClient(base string) *apiClient {
	return &apiClient{
		base:     strings.TrimRight(base, "/"),
		http:     &http.Client{Timeout: httpTimeout},
		transfer: &http.Client{Timeout: transferTimeout},
	}
}

func (api *apiClient) listFiles(search string) (listResponse, error) {
	query := url.Values{}
	query.Set("limit", "20")
	if search != "" {
		query.Set("search", search)
	}
	var resp listResponse
	err := api.getJSON("/api/files?"+query.Encode(), &resp)
	return resp, err
}

func (api *apiClient) fileInfo(id string) (fileInfo, error) {
	var resp fileInfo
	err := api.getJSON("/api/file/"+url.PathEscape(id), &resp)
	return resp, err
}

// fileInfo mirrors the public file view returned by the info endpoint.
type fileInfo struct {
	ID            string `json:"id"`
	OriginalName  string `json:"originalName"`
	FormattedSize string `json:"formattedSize"`
	Downloads     int64  `json:"downloads"`
}

func (api *apiClient) downloadURL(id string) string {
	return api.base + "/api/download/" + url.PathEscape(id)
}

// uploadFile streams one local file to the upload endpoint.
func (api *apiClient) uploadFile(path string) (uploadResponse, error) {
	file, err := os.Open(path)
	if err != nil {
		return uploadResponse{}, err
	}
	defer file.Close()

	pipeReader, pipeWriter := io.Pipe()
	form := multipart.NewWriter(pipeWriter)
	go func() {
		part, err := form.CreateFormFile(uploadField, filepath.Base(path))
		if err == nil {
			_, err = io.Copy(part, file)
		}
		if err == nil {
			err = form.Close()
		}
		pipeWriter.CloseWithError(err)
	}()

	req, err := http.NewRequest(http.MethodPost, api.base+"/api/upload", pipeReader)
	if err != nil {
		return uploadResponse{}, err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	resp, err := api.transfer.Do(req)
	if err != nil {
		return uploadResponse{}, err
	}
	defer resp.Body.Close()

	var out uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return uploadResponse{}, fmt.Errorf("server returned %d", resp.StatusCode)
	}
	if !out.Success {
		if len(out.Rejected) > 0 {
			return out, fmt.Errorf("%s: %s", out.Rejected[0].Filename, out.Rejected[0].Error)
		}
		return out, errors.New(out.Error)
	}
	return out, nil
}

// downloadFile saves a file into dir under the name the server reports and
// returns the written path.
func (api *apiClient) downloadFile(id, dir string) (string, error) {
	resp, err := api.transfer.Get(api.downloadURL(id))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("server returned %d: %s", resp.StatusCode, readResponseError(resp.Body))
	}

	name := id
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil && params["filename"] != "" {
		name = filepath.Base(params["filename"])
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	target := filepath.Join(dir, name)
	out, err := os.Create(target)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(target)
		return "", err
	}
	return target, out.Close()
}

func (api *apiClient) getJSON(path string, out any) error {
	resp, err := api.http.Get(api.base + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, readResponseError(resp.Body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func readResponseError(body io.Reader) string {
	data, err := io.ReadAll(body)
	if err != nil || len(data) == 0 {
		return "request failed"
	}
	var parsed errorResponse
	if err := json.Unmarshal(data, &parsed); err == nil && parsed.Error != "" {
		return parsed.Error
	}
	return strings.TrimSpace(string(data))
}

// httpBaseFromJoinURL turns ws://host/ws into http://host.
func httpBaseFromJoinURL(wsURL string) (string, error) {
	parsed, err := url.Parse(wsURL)
	if err != nil {
		return "", err
	}
	switch parsed.Scheme {
	case "ws":
		parsed.Scheme = "http"
	case "wss":
		parsed.Scheme = "https"
	default:
		return "", fmt.Errorf("unsupported scheme %s", parsed.Scheme)
	}
	parsed.Path = ""
	parsed.RawQuery = ""
	parsed.Fragment = ""
	return strings.TrimRight(parsed.String(), "/"), nil
}
