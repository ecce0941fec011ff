// Package search runs person searches and prepares rows for presentation.
// Both the web server and the bot go through Service.
package search

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"padron/internal/gender"
	"padron/internal/metrics"
	"padron/internal/storage"
	logx "padron/pkg/logx"
)

// ImageRoute is the URL prefix under which identity images are served.
const ImageRoute = "/dui-images/"

// imageExtensions are probed in this order.
var imageExtensions = []string{"jpg", "jpeg", "png"}

// Store is the storage dependency of Service.
type Store interface {
	Search(ctx context.Context, c storage.Criteria) ([]storage.Person, error)
}

// Result is a person row after enrichment.
type Result struct {
	storage.Person
	ImagenURL string `json:"imagen_url,omitempty"`
	// ImagePath is the resolved file on disk, for front ends that upload it.
	ImagePath string `json:"-"`
}

type Service struct {
	store     Store
	imageRoot string
	metrics   *metrics.Metrics
	log       logx.Logger
}

// New builds a Service. imageRoot may be empty, which disables image lookup.
// m may be nil.
func New(store Store, imageRoot string, m *metrics.Metrics, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		store:     store,
		imageRoot: strings.TrimSpace(imageRoot),
		metrics:   m,
		log:       log.With(logx.String("comp", "search")),
	}
}

// ImageRoot returns the configured image directory ("" when disabled).
func (s *Service) ImageRoot() string { return s.imageRoot }

// Search runs the store query and enriches every row. channel labels
// metrics ("web", "bot").
func (s *Service) Search(ctx context.Context, channel string, c storage.Criteria) ([]Result, error) {
	start := time.Now()
	rows, err := s.store.Search(ctx, c)
	if err != nil {
		s.metrics.ObserveSearch(channel, 0, err, time.Since(start))
		return nil, err
	}

	out := make([]Result, 0, len(rows))
	for _, p := range rows {
		out = append(out, s.enrich(p))
	}
	s.metrics.ObserveSearch(channel, len(out), nil, time.Since(start))
	return out, nil
}

func (s *Service) enrich(p storage.Person) Result {
	r := Result{Person: p}
	if s.imageRoot != "" && p.Dui != nil {
		if name, path, ok := s.findImage(strings.TrimSpace(*p.Dui)); ok {
			r.ImagenURL = ImageRoute + name
			r.ImagePath = path
			s.metrics.IncImagesResolved()
		}
	}
	sexo := SexLabel(p.Sexo, p.NombreCompleto)
	r.Sexo = &sexo
	return r
}

// findImage probes <id>.jpg, <id>.jpeg and <id>.png under the image root.
func (s *Service) findImage(id string) (name, path string, ok bool) {
	if id == "" {
		return "", "", false
	}
	for _, ext := range imageExtensions {
		name = id + "." + ext
		// Identifiers come from the database; still refuse anything that
		// could escape the image root.
		if !IsSafeFilename(name) {
			s.log.Warn("identifier not usable as file name", logx.String("dui", id))
			return "", "", false
		}
		path = filepath.Join(s.imageRoot, name)
		st, err := os.Stat(path)
		if err == nil && st.Mode().IsRegular() {
			return name, path, true
		}
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.log.Warn("image probe failed", logx.String("path", path), logx.Err(err))
		}
	}
	return "", "", false
}

// SexLabel maps the stored sex code to its display label, inferring from the
// full name when the code is missing or unrecognized.
func SexLabel(sexo, nombre *string) string {
	if sexo != nil {
		switch *sexo {
		case "F":
			return "Femenino"
		case "M":
			return "Masculino"
		}
	}
	return gender.FromValue(nombre).String()
}
