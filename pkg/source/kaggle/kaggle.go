// Package kaggle reads one file of a Kaggle dataset.
//
// Location is "owner/dataset" and Table is the file inside the dataset.
// The download is spooled to a temporary file, unzipped when Kaggle sends
// an archive, and parsed by the file reader; the temporary file is removed
// when the row sequence is closed.
package kaggle

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/zip"
	"go.uber.org/zap"

	"github.com/ajitpratap0/edgesql/pkg/clients"
	"github.com/ajitpratap0/edgesql/pkg/config"
	"github.com/ajitpratap0/edgesql/pkg/errors"
	"github.com/ajitpratap0/edgesql/pkg/logger"
	"github.com/ajitpratap0/edgesql/pkg/retry"
	"github.com/ajitpratap0/edgesql/pkg/schema"
	"github.com/ajitpratap0/edgesql/pkg/source"
	"github.com/ajitpratap0/edgesql/pkg/source/file"
)

func init() {
	source.Register(source.KindDataset, New)
}

// Reader downloads and parses one dataset file.
type Reader struct {
	spec    source.Spec
	cfg     *config.Config
	owner   string
	dataset string
	api     string
	http    *clients.HTTPClient
	logger  *zap.Logger
}

// New validates the dataset reference.
func New(spec source.Spec, cfg *config.Config) (source.Reader, error) {
	owner, dataset, ok := strings.Cut(strings.Trim(spec.Location, "/"), "/")
	if !ok || owner == "" || dataset == "" || strings.Contains(dataset, "/") {
		return nil, errors.Newf(errors.ErrorTypeConfig, "dataset must be owner/dataset, got %q", spec.Location)
	}
	if strings.TrimSpace(spec.Table) == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "dataset source needs a file name")
	}

	api := cfg.Sources.Kaggle.APIURL
	if api == "" {
		api = config.DefaultKaggleAPI
	}

	hc := clients.HTTPConfigFrom("kaggle", cfg)
	// downloads are bounded by the caller's context, not a per-request timeout
	hc.RequestTimeout = 0

	log := logger.With(zap.String("source", "kaggle"), zap.String("dataset", owner+"/"+dataset))
	return &Reader{
		spec:    spec,
		cfg:     cfg,
		owner:   owner,
		dataset: dataset,
		api:     strings.TrimRight(api, "/"),
		http:    clients.NewHTTPClient(hc, log),
		logger:  log,
	}, nil
}

// Open downloads the file and hands it to the file reader.
func (r *Reader) Open(ctx context.Context) (*schema.SourceSchema, source.RowSequence, error) {
	user, key, err := r.cfg.Sources.Kaggle.Resolve()
	if err == nil && (user == "" || key == "") {
		err = errors.New(errors.ErrorTypeConfig, "kaggle.json has no username or key")
	}
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrorTypeConfig,
			"Kaggle credentials not found: set KAGGLE_USERNAME and KAGGLE_KEY or provide ~/.kaggle/kaggle.json")
	}

	var tmp *os.File
	attempts, err := retry.FromConfig(r.cfg.Reliability).Do(ctx, func(int) error {
		var derr error
		tmp, derr = r.download(ctx, user, key)
		return derr
	}, nil)
	if err != nil {
		return nil, nil, source.Unavailable(err, r.spec, "failed to download dataset file").
			WithDetail("attempts", attempts)
	}

	body, name, err := unpack(tmp, r.spec.Table)
	if err != nil {
		removeTemp(tmp)
		if errors.GetType(err) == "" {
			err = source.Unavailable(err, r.spec, "failed to open dataset archive")
		}
		return nil, nil, err
	}

	r.logger.Debug("dataset file downloaded", zap.String("file", name), zap.Int("attempts", attempts))
	return file.Read(ctx, r.spec, r.cfg, body, name)
}

// URL returns the download endpoint for the file.
func (r *Reader) URL() string {
	return r.api + "/datasets/download/" + url.PathEscape(r.owner) + "/" +
		url.PathEscape(r.dataset) + "/" + url.PathEscape(r.spec.Table)
}

func (r *Reader) download(ctx context.Context, user, key string) (*os.File, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.URL(), nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid dataset URL")
	}
	req.SetBasicAuth(user, key)

	resp, err := r.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		var body struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(data, &body)
		return nil, clients.StatusError(resp.StatusCode, body.Message).
			WithDetail("url", r.URL())
	}

	tmp, err := os.CreateTemp("", "edgesql-kaggle-*")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to create temporary file")
	}
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		removeTemp(tmp)
		return nil, clients.Classify(ctx, err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		removeTemp(tmp)
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to rewind temporary file")
	}
	return tmp, nil
}

var zipMagic = []byte("PK\x03\x04")

// unpack returns the dataset file from tmp, opening the archive entry when
// tmp is a zip. The returned body removes tmp when closed.
func unpack(tmp *os.File, want string) (io.ReadCloser, string, error) {
	cleanup := &tempCloser{f: tmp}

	magic := make([]byte, len(zipMagic))
	n, _ := io.ReadFull(tmp, magic)
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return nil, "", err
	}
	if n < len(zipMagic) || string(magic) != string(zipMagic) {
		return &readCloser{Reader: tmp, closers: []io.Closer{cleanup}}, want, nil
	}

	info, err := tmp.Stat()
	if err != nil {
		return nil, "", err
	}
	zr, err := zip.NewReader(tmp, info.Size())
	if err != nil {
		return nil, "", err
	}

	entry := pick(zr.File, want)
	if entry == nil {
		names := make([]string, 0, len(zr.File))
		for _, f := range zr.File {
			names = append(names, f.Name)
		}
		return nil, "", errors.Newf(errors.ErrorTypeSourceUnavailable, "file %q not found in dataset archive", want).
			WithDetail("entries", names)
	}
	rc, err := entry.Open()
	if err != nil {
		return nil, "", err
	}
	return &readCloser{Reader: rc, closers: []io.Closer{rc, cleanup}}, path.Base(entry.Name), nil
}

// pick finds want among the archive entries, falling back to the only
// regular file in a single-entry archive.
func pick(files []*zip.File, want string) *zip.File {
	var regular []*zip.File
	for _, f := range files {
		if f.FileInfo().IsDir() {
			continue
		}
		if f.Name == want || strings.EqualFold(path.Base(f.Name), path.Base(want)) {
			return f
		}
		regular = append(regular, f)
	}
	if len(regular) == 1 {
		return regular[0]
	}
	return nil
}

type tempCloser struct {
	f *os.File
}

func (t *tempCloser) Close() error {
	return removeTemp(t.f)
}

func removeTemp(f *os.File) error {
	err := f.Close()
	if rmErr := os.Remove(f.Name()); err == nil {
		err = rmErr
	}
	return err
}

type readCloser struct {
	io.Reader
	closers []io.Closer
}

func (r *readCloser) Close() error {
	var first error
	for _, c := range r.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
