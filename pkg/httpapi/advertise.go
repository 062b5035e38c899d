// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package httpapi

import (
	"fmt"

	"github.com/grandcat/zeroconf"
)

const (
	// ServiceType is the mDNS service type the REST server announces
	ServiceType = "_seriamp._tcp"

	// ServiceDomain is the mDNS domain
	ServiceDomain = "local."
)

// Advertisement is a running mDNS announcement
type Advertisement struct {
	server *zeroconf.Server
}

// Advertise announces the REST server on the local network
func Advertise(instance string, port int) (*Advertisement, error) {
	if instance == "" {
		instance = "seriamp"
	}
	txt := []string{"path=/", "api=1"}

	server, err := zeroconf.Register(instance, ServiceType, ServiceDomain, port, txt, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to register mDNS service: %w", err)
	}
	return &Advertisement{server: server}, nil
}

// Shutdown withdraws the announcement
func (a *Advertisement) Shutdown() {
	a.server.Shutdown()
}
