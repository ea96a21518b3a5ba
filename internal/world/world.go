package world

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ErrUnknownWorld is returned when a name matches no world, data center or region.
var ErrUnknownWorld = errors.New("unknown world")

// Kind identifies the level of the server hierarchy a Scope refers to.
type Kind string

const (
	KindWorld      Kind = "world"
	KindDataCenter Kind = "data_center"
	KindRegion     Kind = "region"
)

// Scope is a resolved market query target.
type Scope struct {
	Kind Kind
	Name string // Canonical name, usable in provider URLs

	worlds map[int]struct{}
}

// Contains reports whether worldID belongs to the scope.
func (s Scope) Contains(worldID int) bool {
	_, ok := s.worlds[worldID]
	return ok
}

// WorldIDs returns the sorted IDs of the worlds in the scope.
func (s Scope) WorldIDs() []int {
	ids := make([]int, 0, len(s.worlds))
	for id := range s.worlds {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Region is the exported view of one region and its data centers.
type Region struct {
	Name        string       `json:"name"`
	DataCenters []DataCenter `json:"dataCenters"`
}

// DataCenter is the exported view of one data center.
type DataCenter struct {
	Name   string  `json:"name"`
	Worlds []World `json:"worlds"`
}

// World is a single game world.
type World struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// indexes built once from the static tables
var (
	worldIDsByName = make(map[string]int)
	dcOfWorld      = make(map[int]string)
	regionOfWorld  = make(map[int]string)
	scopesByName   = make(map[string]Scope)
)

func init() {
	for id, name := range worldNames {
		worldIDsByName[strings.ToLower(name)] = id
		scopesByName[strings.ToLower(name)] = Scope{
			Kind:   KindWorld,
			Name:   name,
			worlds: map[int]struct{}{id: {}},
		}
	}

	for _, r := range regions {
		regionWorlds := make(map[int]struct{})
		for _, dc := range r.dataCenters {
			dcWorlds := make(map[int]struct{}, len(dc.worlds))
			for _, id := range dc.worlds {
				dcWorlds[id] = struct{}{}
				regionWorlds[id] = struct{}{}
				dcOfWorld[id] = dc.name
				regionOfWorld[id] = r.name
			}
			scopesByName[strings.ToLower(dc.name)] = Scope{Kind: KindDataCenter, Name: dc.name, worlds: dcWorlds}
		}
		scopesByName[strings.ToLower(r.name)] = Scope{Kind: KindRegion, Name: r.name, worlds: regionWorlds}
	}
}

// Resolve maps a world name or ID, data-center name or region name to a Scope.
// Matching is case-insensitive.
func Resolve(name string) (Scope, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return Scope{}, fmt.Errorf("%w: empty name", ErrUnknownWorld)
	}

	if id, err := strconv.Atoi(key); err == nil {
		n, ok := worldNames[id]
		if !ok {
			return Scope{}, fmt.Errorf("%w: id %d", ErrUnknownWorld, id)
		}
		key = strings.ToLower(n)
	}

	s, ok := scopesByName[key]
	if !ok {
		return Scope{}, fmt.Errorf("%w: %q", ErrUnknownWorld, name)
	}
	return s, nil
}

// IDByName returns the world ID for a world name, or 0 if unknown.
func IDByName(name string) int {
	return worldIDsByName[strings.ToLower(name)]
}

// Name returns the world name for an ID.
func Name(id int) (string, bool) {
	n, ok := worldNames[id]
	return n, ok
}

// DataCenterOf returns the data center a world belongs to, or "".
func DataCenterOf(id int) string {
	return dcOfWorld[id]
}

// RegionOf returns the region a world belongs to, or "".
func RegionOf(id int) string {
	return regionOfWorld[id]
}

// Regions returns the full hierarchy in table order.
func Regions() []Region {
	out := make([]Region, 0, len(regions))
	for _, r := range regions {
		reg := Region{Name: r.name, DataCenters: make([]DataCenter, 0, len(r.dataCenters))}
		for _, dc := range r.dataCenters {
			d := DataCenter{Name: dc.name, Worlds: make([]World, 0, len(dc.worlds))}
			for _, id := range dc.worlds {
				d.Worlds = append(d.Worlds, World{ID: id, Name: worldNames[id]})
			}
			reg.DataCenters = append(reg.DataCenters, d)
		}
		out = append(out, reg)
	}
	return out
}
