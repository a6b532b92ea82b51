package deploy

import (
	"context"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/cosmo-local-credit/doug/publish/classify"
)

type (
	// Main identifies the registry contract. An empty Address means the
	// registry is created; otherwise it is attached to.
	Main struct {
		Name    string
		Address string
	}

	// RegistryMode is either Create or AttachTo.
	RegistryMode interface {
		isRegistryMode()
		String() string
	}

	Create struct{}

	AttachTo struct {
		Address common.Address
	}

	// DeployedContract is immutable once recorded.
	DeployedContract struct {
		Role            classify.Role  `json:"role" yaml:"role"`
		Name            string         `json:"name" yaml:"name"`
		Address         common.Address `json:"address" yaml:"address"`
		DeployedAtBlock *uint64        `json:"deployed_at_block,omitempty" yaml:"deployed_at_block,omitempty"`
		TxHash          common.Hash    `json:"tx_hash,omitempty" yaml:"tx_hash,omitempty"`
	}

	// Session is the state of one Run. Completed and Failures partition Pending.
	// Roles holds the classification of every pending child, failed or not.
	Session struct {
		ID              uuid.UUID                   `json:"id" yaml:"id"`
		Mode            RegistryMode                `json:"-" yaml:"-"`
		Registry        DeployedContract            `json:"registry" yaml:"registry"`
		RegistryCreated bool                        `json:"registry_created" yaml:"registry_created"`
		RegistryBlock   *uint64                     `json:"registry_block,omitempty" yaml:"registry_block,omitempty"`
		Pending         []string                    `json:"pending" yaml:"pending"`
		Roles           map[string]classify.Role    `json:"roles" yaml:"roles"`
		Completed       map[string]DeployedContract `json:"completed" yaml:"completed"`
		Failures        map[string]*Error           `json:"failures" yaml:"failures"`
		StartedAt       time.Time                   `json:"started_at" yaml:"started_at"`
		FinishedAt      time.Time                   `json:"finished_at" yaml:"finished_at"`
	}

	// Recorder receives the session once a run has finished.
	Recorder interface {
		Record(ctx context.Context, s *Session) error
	}

	nopRecorder struct{}
)

func (Create) isRegistryMode()   {}
func (AttachTo) isRegistryMode() {}

func (Create) String() string     { return "create" }
func (m AttachTo) String() string { return "attach " + m.Address.Hex() }

func (nopRecorder) Record(context.Context, *Session) error { return nil }

// ParseMode validates main and decides between creating and attaching.
func ParseMode(main Main) (RegistryMode, error) {
	if strings.TrimSpace(main.Name) == "" {
		return nil, newError(KindConfiguration, "", "main contract name required", nil)
	}
	addr := strings.TrimSpace(main.Address)
	if addr == "" {
		return Create{}, nil
	}
	if !common.IsHexAddress(addr) {
		return nil, newError(KindConfiguration, main.Name, "invalid main contract address "+addr, nil)
	}
	return AttachTo{Address: common.HexToAddress(addr)}, nil
}

func newSession() *Session {
	return &Session{
		ID:        uuid.New(),
		Roles:     map[string]classify.Role{},
		Completed: map[string]DeployedContract{},
		Failures:  map[string]*Error{},
		StartedAt: time.Now().UTC(),
	}
}

// Failed reports whether any child failed.
func (s *Session) Failed() bool {
	return len(s.Failures) > 0
}
