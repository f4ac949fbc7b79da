package client

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
	"golang.org/x/net/publicsuffix"
)

// sessionFile is the on-disk form of a FileJar.
type sessionFile struct {
	Server  string         `json:"server"`
	Cookies []storedCookie `json:"cookies"`
}

type storedCookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// FileJar is a cookie jar that mirrors the backend's cookies to a file, so
// that separate vmdeck invocations share one backend session. Only cookies
// sent to the backend URL are persisted. The file is written with 0600 and
// guarded by a lock file for concurrent invocations.
type FileJar struct {
	path string
	base *url.URL

	mu      sync.Mutex
	jar     *cookiejar.Jar
	lock    *flock.Flock
	saveErr error
}

// NewFileJar opens (or starts) the session file at path for the backend at
// baseURL. A file written for a different backend is ignored.
func NewFileJar(path, baseURL string) (*FileJar, error) {
	norm, err := normalizeBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	base, err := url.Parse(norm)
	if err != nil {
		return nil, err
	}
	jar, err := newMemoryJar()
	if err != nil {
		return nil, err
	}

	j := &FileJar{
		path: path,
		base: base,
		jar:  jar,
		lock: flock.New(path + ".lock"),
	}
	if err := j.load(); err != nil {
		return nil, err
	}
	return j, nil
}

func newMemoryJar() (*cookiejar.Jar, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}
	return jar, nil
}

// Cookies implements http.CookieJar.
func (j *FileJar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.jar.Cookies(u)
}

// SetCookies implements http.CookieJar and writes the backend's cookies
// through to disk. A write failure is kept for Err.
func (j *FileJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.jar.SetCookies(u, cookies)
	j.saveErr = j.saveLocked()
}

// Err returns the error of the last write, if any.
func (j *FileJar) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.saveErr
}

// Clear forgets all cookies and removes the session file.
func (j *FileJar) Clear() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	jar, err := newMemoryJar()
	if err != nil {
		return err
	}
	j.jar = jar

	if _, err := os.Stat(j.path); os.IsNotExist(err) {
		return nil
	}
	if err := j.lock.Lock(); err != nil {
		return fmt.Errorf("locking %s: %w", j.path, err)
	}
	defer j.lock.Unlock()

	if err := os.Remove(j.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing %s: %w", j.path, err)
	}
	return nil
}

func (j *FileJar) load() error {
	if _, err := os.Stat(j.path); os.IsNotExist(err) {
		return nil
	}
	if err := j.lock.RLock(); err != nil {
		return fmt.Errorf("locking %s: %w", j.path, err)
	}
	defer j.lock.Unlock()

	data, err := os.ReadFile(j.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading session file: %w", err)
	}

	var f sessionFile
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parsing session file %s: %w", j.path, err)
	}
	if f.Server != j.base.String() {
		return nil
	}

	cookies := make([]*http.Cookie, 0, len(f.Cookies))
	for _, c := range f.Cookies {
		cookies = append(cookies, &http.Cookie{Name: c.Name, Value: c.Value, Path: "/"})
	}
	j.jar.SetCookies(j.base, cookies)
	return nil
}

func (j *FileJar) saveLocked() error {
	if err := os.MkdirAll(filepath.Dir(j.path), 0700); err != nil {
		return fmt.Errorf("creating session dir: %w", err)
	}
	if err := j.lock.Lock(); err != nil {
		return fmt.Errorf("locking %s: %w", j.path, err)
	}
	defer j.lock.Unlock()

	f := sessionFile{Server: j.base.String()}
	for _, c := range j.jar.Cookies(j.base) {
		f.Cookies = append(f.Cookies, storedCookie{Name: c.Name, Value: c.Value})
	}
	if len(f.Cookies) == 0 {
		if err := os.Remove(j.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing %s: %w", j.path, err)
		}
		return nil
	}

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(j.path, data, 0600)
}
