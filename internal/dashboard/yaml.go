package dashboard

import (
	"context"

	"go.uber.org/zap"
)

// YAMLRegistrar writes the document to a file for a yaml-mode dashboard,
// e.g. one declared in configuration.yaml with
//
//	lovelace:
//	  dashboards:
//	    energy-dashboard:
//	      mode: yaml
//	      filename: energy_dashboard.yaml
type YAMLRegistrar struct {
	path   string
	logger *zap.Logger
}

func NewYAMLRegistrar(path string, logger *zap.Logger) *YAMLRegistrar {
	return &YAMLRegistrar{path: path, logger: logger.Named("dashboard_yaml")}
}

func (r *YAMLRegistrar) Register(_ context.Context, doc Document) error {
	data, err := MarshalYAML(doc)
	if err != nil {
		return err
	}
	if err := writeFileAtomic(r.path, data); err != nil {
		return err
	}
	r.logger.Info("dashboard yaml written", zap.String("path", r.path))
	return nil
}

func (r *YAMLRegistrar) Unregister(_ context.Context) error {
	return removeIfExists(r.path)
}
