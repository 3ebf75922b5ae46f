package fetch

import (
	"context"
	"strings"

	"github.com/gammazero/workerpool"
)

// Request names one archive to fetch.
type Request struct {
	Name   string
	URL    string
	SHA256 string
}

// Result is the outcome of a Request.
type Result struct {
	Request
	Path string
	Err  error
}

// FetchAll fetches every request with at most jobs downloads in flight.
// Results come back in request order; a failed request does not stop the
// others.
func (d *Downloader) FetchAll(ctx context.Context, reqs []Request, jobs int) []Result {
	if jobs < 1 {
		jobs = 1
	}
	results := make([]Result, len(reqs))
	pool := workerpool.New(jobs)

	// Identical requests share one download.
	type key struct{ url, sum string }
	groups := make(map[key][]int)
	var order []key
	for i, req := range reqs {
		k := key{req.URL, strings.ToLower(req.SHA256)}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], i)
	}

	for _, k := range order {
		idx := groups[k]
		pool.Submit(func() {
			first := reqs[idx[0]]
			var (
				p   string
				err = ctx.Err()
			)
			if err == nil {
				p, err = d.Fetch(ctx, first.URL, first.SHA256)
			}
			for _, i := range idx {
				results[i] = Result{Request: reqs[i], Path: p, Err: err}
			}
		})
	}
	pool.StopWait()
	return results
}
