package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"neatsync/internal/domain"
)

const (
	listingPathFragment = "/api/v5/entities"

	// The app serves at most this many items per listing page once the page
	// size control has been raised (see Driver.maximizePageSize). Used only
	// when the captured URL does not declare its own page size.
	listingPageSize = 100

	// Hard stop for the direct-fetch continuation, in case the endpoint keeps
	// returning full pages forever.
	maxListingPages = 100

	maxListingBody = 32 << 20
)

// Interceptor recovers folder listings from the network traffic the web app
// produces when a folder is opened. The rendered DOM only ever holds the
// visible slice of a virtually scrolled list, so the wire payload is the only
// complete source.
type Interceptor struct {
	driver *Driver
	log    *zap.SugaredLogger
	window time.Duration

	// fetchTimeout bounds each direct continuation GET.
	fetchTimeout time.Duration
}

func NewInterceptor(driver *Driver, log *zap.SugaredLogger, window, fetchTimeout time.Duration) *Interceptor {
	return &Interceptor{driver: driver, log: log, window: window, fetchTimeout: fetchTimeout}
}

type capturedPage struct {
	URL   string
	Items []domain.Entity
}

func (i *Interceptor) CaptureListing(ctx context.Context, trigger func() error) ([]domain.Entity, error) {
	page := i.driver.page.Context(ctx)
	if err := (proto.NetworkEnable{}).Call(page); err != nil {
		return nil, fmt.Errorf("enable network capture: %w", err)
	}

	windowCtx, cancel := context.WithTimeout(ctx, i.window)
	defer cancel()

	type hit struct {
		id  proto.NetworkRequestID
		url string
	}
	var mu sync.Mutex
	var hits []hit

	wait := page.Context(windowCtx).EachEvent(func(ev *proto.NetworkResponseReceived) {
		if ev.Response == nil || ev.Response.Status != http.StatusOK {
			return
		}
		if !strings.Contains(ev.Response.URL, listingPathFragment) {
			return
		}
		mu.Lock()
		hits = append(hits, hit{id: ev.RequestID, url: ev.Response.URL})
		mu.Unlock()
	})

	if err := trigger(); err != nil {
		cancel()
		wait()
		return nil, err
	}

	// The window has to run its course: the app fires several listing calls
	// while settling and only the last, largest one is complete.
	wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mu.Lock()
	observed := make([]hit, len(hits))
	copy(observed, hits)
	mu.Unlock()

	var pages []capturedPage
	for _, h := range observed {
		body, err := proto.NetworkGetResponseBody{RequestID: h.id}.Call(page)
		if err != nil {
			i.log.Debugw("response body unavailable", "url", h.url, "err", err)
			continue
		}
		items, err := decodeListing([]byte(body.Body))
		if err != nil {
			i.log.Debugw("undecodable listing response", "url", h.url, "err", err)
			continue
		}
		pages = append(pages, capturedPage{URL: h.url, Items: items})
	}

	winner := pickLargest(pages)
	if winner.URL == "" {
		return nil, nil
	}
	i.log.Debugw("listing captured", "url", winner.URL, "items", len(winner.Items), "responses", len(pages))

	// Fullness is judged against the page size the request itself asked for:
	// the raise-to-100 attempt is best effort, and a folder served at a
	// smaller default can fill its first page well below 100 items.
	if len(winner.Items) < pageSizeFrom(winner.URL) {
		return winner.Items, nil
	}
	return i.fetchRemainingPages(ctx, winner)
}

// fetchRemainingPages continues a full first page with direct authenticated
// GETs, bumping the page query parameter until a short page comes back.
func (i *Interceptor) fetchRemainingPages(ctx context.Context, first capturedPage) ([]domain.Entity, error) {
	client, err := i.driver.AuthenticatedClient(ctx)
	if err != nil {
		i.log.Warnw("cannot continue paging without session cookies", "err", err)
		return first.Items, nil
	}

	pageSize := pageSizeFrom(first.URL)
	all := first.Items
	for pageNum := 2; pageNum <= maxListingPages; pageNum++ {
		pageURL, err := nextPageURL(first.URL, pageNum)
		if err != nil {
			i.log.Warnw("cannot derive next page url", "url", first.URL, "err", err)
			return all, nil
		}
		pageCtx, cancel := context.WithTimeout(ctx, i.fetchTimeout)
		items, err := fetchListingPage(pageCtx, client, pageURL)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return all, ctx.Err()
			}
			i.log.Warnw("listing page fetch failed, keeping partial listing", "page", pageNum, "err", err)
			return all, nil
		}
		all = append(all, items...)
		if len(items) < pageSize {
			return all, nil
		}
	}
	i.log.Warnw("listing paging stopped at safety cap", "pages", maxListingPages)
	return all, nil
}

func fetchListingPage(ctx context.Context, client *http.Client, pageURL string) ([]domain.Entity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("listing page returned %s", resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxListingBody))
	if err != nil {
		return nil, err
	}
	return decodeListing(data)
}

type listingEntity struct {
	WebID       string `json:"webid"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Type        string `json:"type"`
	Size        int64  `json:"size"`
	FileSize    int64  `json:"file_size"`
	DownloadURL string `json:"download_url"`
	FolderWebID string `json:"folder_webid"`
}

type listingBody struct {
	Entities []listingEntity `json:"entities"`
}

func decodeListing(data []byte) ([]domain.Entity, error) {
	var body listingBody
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, err
	}
	items := make([]domain.Entity, 0, len(body.Entities))
	for _, e := range body.Entities {
		kind := domain.KindDocument
		if e.Type == "folder" {
			kind = domain.KindFolder
		}
		size := e.Size
		if size == 0 {
			size = e.FileSize
		}
		items = append(items, domain.Entity{
			ID:          e.WebID,
			Name:        e.Name,
			Description: e.Description,
			Kind:        kind,
			Size:        size,
			DownloadURL: e.DownloadURL,
			ParentID:    e.FolderWebID,
		})
	}
	return items, nil
}

func pickLargest(pages []capturedPage) capturedPage {
	var best capturedPage
	for _, p := range pages {
		if best.URL == "" || len(p.Items) > len(best.Items) {
			best = p
		}
	}
	return best
}

// pageSizeFrom reads the page size the captured request asked for out of its
// own query string, falling back to the sticky maximum when no recognizable
// parameter is present.
func pageSizeFrom(raw string) int {
	u, err := url.Parse(raw)
	if err != nil {
		return listingPageSize
	}
	q := u.Query()
	for _, key := range []string{"per_page", "page_size", "limit"} {
		if v := q.Get(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				return n
			}
		}
	}
	return listingPageSize
}

func nextPageURL(raw string, page int) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String(), nil
}
