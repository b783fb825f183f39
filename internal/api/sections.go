package api

import (
	"net/http"

	"gopkg.in/yaml.v3"

	"github.com/eugenenazirov/trendradar-webui/internal/document"
	"github.com/eugenenazirov/trendradar-webui/internal/metrics"
)

// section is a configuration subtree exposed under /api/config/{route}.
type section struct {
	route string
	path  []string
	title string
	empty func() *yaml.Node
}

var sections = []section{
	{route: "notification", path: []string{"notification"}, title: "Notification", empty: document.MappingNode},
	{route: "platforms", path: []string{"platforms"}, title: "Platform", empty: document.SequenceNode},
	{route: "rss", path: []string{"rss"}, title: "RSS", empty: document.MappingNode},
	{route: "report", path: []string{"report"}, title: "Report", empty: document.MappingNode},
	{route: "push-window", path: []string{"notification", "push_window"}, title: "Push window", empty: document.MappingNode},
	{route: "advanced", path: []string{"advanced"}, title: "Advanced", empty: document.MappingNode},
	{route: "storage", path: []string{"storage"}, title: "Storage", empty: document.MappingNode},
	{route: "app", path: []string{"app"}, title: "App", empty: document.MappingNode},
}

func (h *Handler) sectionGetter(s section) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		node := h.config.Section(s.path...)
		if node == nil {
			node = s.empty()
		}
		writeData(w, document.NewValue(node))
	}
}

func (h *Handler) sectionUpdater(s section) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		node, err := readJSONNode(w, r)
		if err != nil {
			h.failRequest(w, r, s.title+" configuration update failed", err)
			return
		}

		err = h.config.UpdateSection(node, s.path...)
		metrics.ConfigWritesTotal.WithLabelValues(s.route, metrics.Result(err)).Inc()
		if err != nil {
			h.failRequest(w, r, s.title+" configuration could not be saved", err)
			return
		}
		writeMessage(w, s.title+" configuration saved")
	}
}
