// Package cmd wires configuration, credential stores and the supported
// services into the operations exposed by the oksocial command line.
package cmd

import (
	"github.com/yschimke/oksocial/internal/auth/dropbox"
	"github.com/yschimke/oksocial/internal/auth/foursquare"
	"github.com/yschimke/oksocial/internal/auth/squareup"
	"github.com/yschimke/oksocial/internal/auth/streamdata"
	"github.com/yschimke/oksocial/internal/auth/twitter"
	sdkAuth "github.com/yschimke/oksocial/sdk/auth"
)

// NewRegistry returns a registry holding every supported service.
func NewRegistry() (*sdkAuth.Registry, error) {
	return sdkAuth.NewRegistry(
		dropbox.New(),
		foursquare.New(),
		squareup.New(),
		streamdata.New(),
		twitter.New(),
	)
}
