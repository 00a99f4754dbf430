// Package namegen derives the canonical set of names a Service
// Fabric-style actor runtime needs from a single actor interface type
// name: the service, its endpoints, and the various configuration
// sections addressed by convention rather than by explicit wiring.
package namegen

import "strings"

// Well-known defaults used when the embedder supplies no override.
const (
	DefaultServicePackagePrefix = "FabricActorService"
	DefaultApplicationPrefix    = "FabricActorApp"
	CodePackageName             = "Code"
	ConfigPackageName           = "Config"
	CredentialTypeKey           = "CredentialType"
	StateProviderOverrideName   = "ActorStateProviderOverride"
	StateProviderKey            = "ActorStateProvider"
)

// DefaultServicePackageName is the default service package's name, the
// default prefix suffixed with "Pkg".
func DefaultServicePackageName() string {
	return DefaultServicePackagePrefix + "Pkg"
}

// ServiceNames is the full set of names derived from one actor interface
// type name.
type ServiceNames struct {
	ActorName                 string
	ServiceName               string
	ServiceType               string
	Endpoint                  string
	EndpointV2                string
	EndpointV2_1              string
	ReplicatorEndpoint        string
	ReplicatorConfig          string
	ReplicatorSecurityConfig  string
	ActorStateProviderSettings string
	TransportSettings         string
	LocalStoreConfig          string
}

// DeriveActorName normalizes an actor interface type name (`IMyActor` or
// `MyActor`) to its canonical actor name.
//
// The leading `I` is stripped only when a second character exists and
// isn't lowercase — `IAccount` becomes `Account`, but `Iaccount` and the
// single-character name `I` are left alone, since neither reads as an
// interface-prefix convention. "Actor" is then appended unless the name
// is already suffixed with it, case-insensitively.
func DeriveActorName(name string) string {
	if len(name) > 1 && name[0] == 'I' && !isLower(rune(name[1])) {
		name = name[1:]
	}
	if !strings.HasSuffix(strings.ToLower(name), "actor") {
		name += "Actor"
	}
	return name
}

func isLower(r rune) bool {
	return r >= 'a' && r <= 'z'
}

// DeriveServiceNames computes the full ServiceNames set for an actor
// interface type name.
func DeriveServiceNames(interfaceName string) ServiceNames {
	actorName := DeriveActorName(interfaceName)
	service := actorName + "Service"

	return ServiceNames{
		ActorName:                  actorName,
		ServiceName:                service,
		ServiceType:                service + "Type",
		Endpoint:                   service + "Endpoint",
		EndpointV2:                 service + "EndpointV2",
		EndpointV2_1:               service + "EndpointV2_1",
		ReplicatorEndpoint:         service + "ReplicatorEndpoint",
		ReplicatorConfig:           service + "ReplicatorConfig",
		ReplicatorSecurityConfig:   service + "ReplicatorSecurityConfig",
		ActorStateProviderSettings: service + "ActorStateProviderSettings",
		TransportSettings:          service + "TransportSettings",
		LocalStoreConfig:           service + "LocalStoreConfig",
	}
}

// ApplicationURI normalizes an application name into a fabric: URI. A
// name already carrying the fabric:/ scheme (case-insensitively) is
// returned with its trailing slash trimmed; otherwise the scheme is
// prepended after trimming any trailing slash from the given name.
func ApplicationURI(name string) string {
	if len(name) >= len("fabric:/") && strings.EqualFold(name[:len("fabric:/")], "fabric:/") {
		return strings.TrimSuffix(name, "/")
	}
	return "fabric:/" + strings.TrimSuffix(name, "/")
}
