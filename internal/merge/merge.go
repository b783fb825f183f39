package merge

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/eugenenazirov/trendradar-webui/internal/document"
	"github.com/eugenenazirov/trendradar-webui/internal/overlay"
	"github.com/eugenenazirov/trendradar-webui/internal/storage"
)

// FromEnvKey marks a channel whose primary field came from the environment.
// It only ever appears in effective (served) documents.
const FromEnvKey = "_from_env"

var (
	notificationPath = []string{"notification"}
	channelsPath     = []string{"notification", "channels"}
)

// Service combines the stored configuration with environment overlays.
type Service struct {
	store    storage.ConfigStore
	resolver *overlay.Resolver
	logger   *zap.Logger

	mu sync.RWMutex
}

// NewService constructs a Service.
func NewService(store storage.ConfigStore, resolver *overlay.Resolver, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    store,
		resolver: resolver,
		logger:   logger,
	}
}

// LoadEffective returns the stored configuration with environment overlays
// applied. Read failures degrade to an empty document.
func (s *Service) LoadEffective() *document.Document {
	s.mu.RLock()
	doc := s.readPersisted()
	s.mu.RUnlock()

	channels := ownMapping(ownMapping(doc.Root(), "notification"), "channels")
	for _, name := range overlay.Channels {
		if document.MappingValue(channels, name) == nil {
			document.SetMappingValue(channels, name, document.MappingNode())
		}
	}

	for _, b := range s.resolver.Active() {
		channel := ownMapping(channels, b.Channel)
		document.SetMappingValue(channel, b.Field, document.StringNode(b.Value))
		if b.Primary {
			document.SetMappingValue(channel, FromEnvKey, document.BoolNode(true))
		}
	}

	return doc
}

// LoadPersisted returns the stored configuration without overlays.
func (s *Service) LoadPersisted() *document.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readPersisted()
}

// Section returns the effective node at path, or nil when absent.
func (s *Service) Section(path ...string) *yaml.Node {
	return s.LoadEffective().Lookup(path...)
}

// EnvStatus reports which channel fields the environment controls.
func (s *Service) EnvStatus() map[string]map[string]bool {
	return s.resolver.Status()
}

// Save persists candidate after removing overlay markers and every field the
// environment currently controls. candidate is not modified.
func (s *Service) Save(candidate *document.Document) error {
	if candidate == nil {
		return errors.New("nil configuration document")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persist(candidate.Clone(), s.readStored())
}

// UpdateSection replaces the section at path in the stored configuration and
// persists the result. The read-modify-write runs under one lock.
func (s *Service) UpdateSection(value *yaml.Node, path ...string) error {
	if len(path) == 0 {
		return errors.New("empty section path")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.readPersisted()
	stored := doc.Clone()
	if err := doc.Set(document.CloneNode(value), path...); err != nil {
		return fmt.Errorf("update section: %w", err)
	}
	return s.persist(doc, stored)
}

func (s *Service) readPersisted() *document.Document {
	doc, err := s.store.Read()
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn("configuration file missing, serving empty configuration", zap.Error(err))
		} else {
			s.logger.Error("failed to load configuration file", zap.Error(err))
		}
		return document.New()
	}
	return doc
}

// readStored is readPersisted without the logging, for comparisons on save.
func (s *Service) readStored() *document.Document {
	doc, err := s.store.Read()
	if err != nil {
		return document.New()
	}
	return doc
}

// persist takes ownership of doc. stored is the file content doc replaces.
func (s *Service) persist(doc, stored *document.Document) error {
	s.stripOverlay(doc)
	pruneScaffolding(doc, stored)

	if err := s.store.Write(doc); err != nil {
		s.logger.Error("failed to save configuration file", zap.Error(err))
		return fmt.Errorf("save configuration: %w", err)
	}
	return nil
}

// stripOverlay drops the marker from every channel and removes each field
// whose own variable is set, whether or not the marker was present.
func (s *Service) stripOverlay(doc *document.Document) {
	channels := doc.Lookup(channelsPath...)
	if !document.IsMapping(channels) {
		return
	}
	for _, name := range document.MappingKeys(channels) {
		document.DeleteMappingKey(document.MappingValue(channels, name), FromEnvKey)
	}
	for _, b := range s.resolver.Active() {
		channel := document.MappingValue(channels, b.Channel)
		if document.DeleteMappingKey(channel, b.Field) {
			s.logger.Debug("dropped environment-controlled field",
				zap.String("channel", b.Channel),
				zap.String("field", b.Field),
			)
		}
	}
}

// pruneScaffolding removes the empty containers LoadEffective adds, so that
// saving a freshly loaded document reproduces the stored one. Containers the
// stored file already holds as mappings are left alone.
func pruneScaffolding(doc, stored *document.Document) {
	if !document.IsMapping(doc.Lookup(channelsPath...)) {
		return
	}
	for _, name := range overlay.Channels {
		restoreEmpty(doc, stored, []string{"notification", "channels", name})
	}
	restoreEmpty(doc, stored, channelsPath)
	restoreEmpty(doc, stored, notificationPath)
}

// restoreEmpty replaces an empty mapping at path with what the stored file
// has there: nothing, or the scalar that was there before.
func restoreEmpty(doc, stored *document.Document, path []string) {
	if !document.IsEmptyMapping(doc.Lookup(path...)) {
		return
	}
	prev := stored.Lookup(path...)
	switch {
	case prev == nil:
		doc.Delete(path...)
	case !document.IsMapping(prev):
		_ = doc.Set(document.CloneNode(prev), path...)
	}
}

// ownMapping returns the mapping under key that overlays may write into. A
// missing or scalar value is replaced with an empty mapping, and an alias is
// replaced with a private copy so the anchored node is never modified.
func ownMapping(parent *yaml.Node, key string) *yaml.Node {
	value := document.MappingValue(parent, key)
	switch {
	case !document.IsMapping(value):
		value = document.MappingNode()
		document.SetMappingValue(parent, key, value)
	case value.Kind == yaml.AliasNode:
		value = document.CloneNode(document.Resolve(value))
		value.Anchor = ""
		document.SetMappingValue(parent, key, value)
	}
	return value
}
