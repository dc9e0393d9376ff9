// Package config implements the single-JSON-document config & metadata
// store (C7): one project's name, ports, Postgres credentials, active
// branch, and branch list, with environment-variable overrides and a
// background reload loop.
package config

import (
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/joshuapassos/dbranch/internal/dbrerr"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

// Approach is the provisioning approach variant. The persistence format
// accepts only the exact spellings below; any other string is rejected on
// load.
type Approach string

const (
	ApproachNewDisk      Approach = "NEW_DISK"
	ApproachExistingDisk Approach = "EXISTING_DISK"
)

func (a *Approach) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch Approach(s) {
	case ApproachNewDisk, ApproachExistingDisk:
		*a = Approach(s)
		return nil
	default:
		return fmt.Errorf("unknown approach spelling %q, expected NEW_DISK or EXISTING_DISK", s)
	}
}

// PostgresConfig holds the credentials handed to every branch's container.
type PostgresConfig struct {
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database,omitempty"`
}

// Branch is one entry in the document's branch list.
type Branch struct {
	Name      string    `json:"name"`
	Port      int       `json:"port"`
	IsMain    bool      `json:"is_main"`
	CreatedAt time.Time `json:"created_at"`
}

// Document is the single JSON document persisted per installation.
type Document struct {
	Name           string         `json:"name"`
	APIPort        int            `json:"api_port"`
	ProxyPort      int            `json:"proxy_port"`
	Approach       Approach       `json:"approach"`
	PortMin        int            `json:"port_min"`
	PortMax        int            `json:"port_max"`
	MountPoint     string         `json:"mount_point"`
	ActiveBranch   *string        `json:"active_branch"`
	PostgresConfig PostgresConfig `json:"postgres_config"`
	Branches       []Branch       `json:"branches"`
	CreatedAt      time.Time      `json:"created_at"`
}

// Defaults per spec §4.7.
const (
	DefaultProxyPort  = 5432
	DefaultAPIPort    = 8000
	DefaultPortMin    = 7000
	DefaultPortMax    = 7999
	DefaultMountPoint = "/mnt/dbranch"
)

func defaultDocument() Document {
	return Document{
		Approach:   ApproachNewDisk,
		ProxyPort:  DefaultProxyPort,
		APIPort:    DefaultAPIPort,
		PortMin:    DefaultPortMin,
		PortMax:    DefaultPortMax,
		MountPoint: DefaultMountPoint,
		PostgresConfig: PostgresConfig{
			User:     "dbranch_user",
			Password: "dbranch_pass",
		},
		Branches: []Branch{},
	}
}

// applyEnvOverrides layers DBRANCH_-prefixed environment variables over
// file values which override the defaults above, per spec §4.7.
func applyEnvOverrides(doc *Document) {
	if v := viper.GetString("API_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			doc.APIPort = p
		}
	}
	if v := viper.GetString("PROXY_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			doc.ProxyPort = p
		}
	}
	if v := viper.GetString("PORT_START"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			doc.PortMin = p
		}
	}
	if v := viper.GetString("PORT_END"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			doc.PortMax = p
		}
	}
	if v := viper.GetString("MOUNT_POINT"); v != "" {
		doc.MountPoint = v
	}
	if v := viper.GetString("DEFAULT_PROJECT"); v != "" && doc.Name == "" {
		doc.Name = v
	}
	if v := viper.GetString("APPROACH"); v != "" {
		doc.Approach = Approach(v)
	}
}

// Load reads the document at path, creating it with defaults (overridden
// by environment variables) if absent. A malformed file is a fatal
// ConfigParsing error.
func Load(fsys afero.Fs, path string) (*Document, error) {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		doc := defaultDocument()
		doc.CreatedAt = time.Now()
		applyEnvOverrides(&doc)
		if werr := Save(fsys, path, &doc); werr != nil {
			return nil, werr
		}
		return &doc, nil
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, dbrerr.Wrap(dbrerr.KindConfigParsing, "parse config file "+path, err)
	}
	applyEnvOverrides(&doc)
	return &doc, nil
}

// Save writes doc to path as pretty-printed JSON.
func Save(fsys afero.Fs, path string, doc *Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return dbrerr.Wrap(dbrerr.KindFileSystem, "marshal config document", err)
	}
	if err := afero.WriteFile(fsys, path, data, 0o644); err != nil {
		return dbrerr.Wrap(dbrerr.KindFileSystem, "write config file "+path, err)
	}
	return nil
}

// GetValidPort scans [min,max] and returns the first port for which a TCP
// bind to 127.0.0.1:port succeeds, releasing the probe socket immediately.
func GetValidPort(min, max int) (int, error) {
	for port := min; port <= max; port++ {
		l, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		if err != nil {
			continue
		}
		l.Close()
		return port, nil
	}
	return 0, dbrerr.NoPortAvailable(min, max)
}

// AddBranch appends a branch. It does not check the name or port against
// existing branches; callers allocate ports with GetValidPort.
func (d *Document) AddBranch(b Branch) {
	d.Branches = append(d.Branches, b)
}

// RemoveBranch drops a branch by name. Removing "main" is forbidden by
// the branch lifecycle manager (C8), not by the store itself.
func (d *Document) RemoveBranch(name string) {
	out := d.Branches[:0]
	for _, b := range d.Branches {
		if b.Name != name {
			out = append(out, b)
		}
	}
	d.Branches = out
}

// FindBranch returns the named branch, if any.
func (d *Document) FindBranch(name string) (Branch, bool) {
	for _, b := range d.Branches {
		if b.Name == name {
			return b, true
		}
	}
	return Branch{}, false
}

// SetActiveBranch sets the active branch. Setting it to "main" is
// represented as unsetting ActiveBranch entirely, per spec §4.7's alias.
func (d *Document) SetActiveBranch(name string) error {
	if name == "main" {
		d.ActiveBranch = nil
		return nil
	}
	if _, ok := d.FindBranch(name); !ok {
		return dbrerr.New(dbrerr.KindBranchNotFound, "branch "+name+" not found")
	}
	d.ActiveBranch = &name
	return nil
}

// ActiveBranchName resolves the active branch, defaulting to "main" when
// unset, per C9's connection-resolution rule.
func (d *Document) ActiveBranchName() string {
	if d.ActiveBranch == nil || *d.ActiveBranch == "" {
		return "main"
	}
	return *d.ActiveBranch
}
