package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Service orchestrates system registration and capability synchronization.
type Service struct {
	repo RepositoryPort
}

// NewService constructs a Service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// GetSystem fetches a system by slug.
func (s *Service) GetSystem(ctx context.Context, id string) (System, error) {
	return s.repo.GetSystem(ctx, id)
}

// ListSystems returns all registered systems.
func (s *Service) ListSystems(ctx context.Context) ([]System, error) {
	return s.repo.ListSystems(ctx)
}

// ListCapabilities returns a system's capabilities sorted by display name.
func (s *Service) ListCapabilities(ctx context.Context, systemID string) ([]Capability, error) {
	if _, err := s.repo.GetSystem(ctx, systemID); err != nil {
		return nil, err
	}
	caps, err := s.repo.ListCapabilities(ctx, systemID)
	if err != nil {
		return nil, err
	}
	coll := collate.New(language.English, collate.IgnoreCase)
	coll.Sort(capabilitiesByName(caps))
	return caps, nil
}

// SyncFunctions reconciles an incoming manifest against stored capability
// definitions. The system self-registers on first sync. Capabilities present
// in storage but absent from the manifest are counted and reported, never
// deleted.
func (s *Service) SyncFunctions(ctx context.Context, systemID string, req SyncRequest) (SyncResult, error) {
	systemID = strings.TrimSpace(systemID)
	if systemID == "" {
		return SyncResult{}, errors.New("catalog: system id required")
	}
	if req.System.ID != "" && req.System.ID != systemID {
		return SyncResult{}, fmt.Errorf("catalog: manifest system %q does not match path system %q", req.System.ID, systemID)
	}

	name := req.System.Name
	if name == "" {
		name = systemID
	}
	if _, err := s.repo.UpsertSystem(ctx, System{
		ID:          systemID,
		Name:        name,
		Description: req.System.Description,
		APIURL:      req.System.APIURL,
	}); err != nil {
		return SyncResult{}, err
	}

	stored, err := s.repo.ListCapabilities(ctx, systemID)
	if err != nil {
		return SyncResult{}, err
	}
	existing := make(map[CapabilityKey]Capability, len(stored))
	for _, cap := range stored {
		existing[cap.Key] = cap
	}

	result := SyncResult{Summary: SyncSummary{Total: len(req.Functions)}}
	seen := make(map[CapabilityKey]struct{}, len(req.Functions))
	for _, fn := range req.Functions {
		key, err := ParseCapabilityKey(fn.Key)
		if err != nil {
			return SyncResult{}, err
		}
		if _, dup := seen[key]; dup {
			return SyncResult{}, fmt.Errorf("catalog: duplicate key %q in manifest", key)
		}
		seen[key] = struct{}{}

		cap := Capability{
			ID:          CapabilityID(systemID, key),
			SystemID:    systemID,
			Key:         key,
			Name:        fn.Name,
			Category:    fn.Category,
			Description: fn.Description,
			Endpoint:    fn.Endpoint,
		}
		prev, ok := existing[key]
		switch {
		case !ok:
			if err := s.repo.InsertCapability(ctx, cap); err != nil {
				return SyncResult{}, err
			}
			result.Summary.Created++
		case prev.sameDisplayFields(fn.Name, fn.Category, fn.Description, fn.Endpoint):
			result.Summary.Unchanged++
		default:
			if err := s.repo.UpdateCapability(ctx, cap); err != nil {
				return SyncResult{}, err
			}
			result.Summary.Updated++
		}
	}

	for _, cap := range stored {
		if _, ok := seen[cap.Key]; !ok {
			result.RemovedFunctions = append(result.RemovedFunctions, cap)
		}
	}
	result.Summary.Removed = len(result.RemovedFunctions)

	return result, nil
}

type capabilitiesByName []Capability

func (c capabilitiesByName) Len() int { return len(c) }
func (c capabilitiesByName) Swap(i, j int) { c[i], c[j] = c[j], c[i] }
func (c capabilitiesByName) Bytes(i int) []byte { return []byte(c[i].Name) }
