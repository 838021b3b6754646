package store

import (
	"context"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Corpus is a YAML fixture of sources and their articles, used to stand in
// for the ingestion subsystem during development and tests.
type Corpus struct {
	Sources  []Source  `yaml:"sources"`
	Articles []Article `yaml:"articles"`
}

// ReadCorpus decodes a corpus fixture.
func ReadCorpus(r io.Reader) (*Corpus, error) {
	var c Corpus
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("store: decode corpus: %w", err)
	}
	return &c, nil
}

// Load inserts the corpus into s. Sources are written first; articles whose
// source is missing fail the load.
func (c Corpus) Load(ctx context.Context, s Store) error {
	for _, src := range c.Sources {
		if err := s.AddSource(ctx, src); err != nil {
			return fmt.Errorf("store: load source %s: %w", src.ID, err)
		}
	}
	for _, a := range c.Articles {
		if err := s.AddArticle(ctx, a); err != nil {
			return fmt.Errorf("store: load article %s: %w", a.ID, err)
		}
	}
	return nil
}
