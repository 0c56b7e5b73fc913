package config

import (
	"fmt"

	"github.com/Interactions-AI/odin/internal/store"
)

// DBSectionMarshall is one database section of the jobs-store credential
// file (spec.md §6: "mapping with sections jobs_db, reporting_db, and
// odin_db").
type DBSectionMarshall struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Passwd   string `yaml:"passwd"`
	Backend  string `yaml:"backend"`
	Database string `yaml:"database"`
}

func (d *DBSectionMarshall) trySeal(path string) *DBSection {
	if d == nil {
		return nil
	}
	backend := store.Backend(required(d.Backend, path+".backend"))
	sealed := &DBSection{
		backend:  backend,
		database: required(d.Database, path+".database"),
	}
	if backend == store.BackendPostgres {
		sealed.host = required(d.Host, path+".host")
		sealed.port = d.Port
		sealed.user = required(d.User, path+".user")
		sealed.passwd = d.Passwd
	}
	return sealed
}

// DBSection is the sealed form of one database section.
type DBSection struct {
	host     string
	port     int
	user     string
	passwd   string
	backend  store.Backend
	database string
}

func (d *DBSection) Backend() store.Backend { return d.backend }
func (d *DBSection) Database() string       { return d.database }
func (d *DBSection) Host() string           { return d.host }
func (d *DBSection) Port() int              { return d.port }
func (d *DBSection) User() string           { return d.user }
func (d *DBSection) Passwd() string         { return d.passwd }

// ConnString builds the value the matching JobsStore constructor expects:
// a postgres connection URL for BackendPostgres, or a bare file path (or
// ":memory:") for BackendSQLite.
func (d *DBSection) ConnString() string {
	if d.backend == store.BackendSQLite {
		return d.database
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s", d.user, d.passwd, d.host, d.port, d.database)
}

// JobsStoreConfigMarshall is the root of the jobs-store credential file
// (spec.md §6). Only JobsDB is consumed by this repository's components
// (ReportingDB/OdinDB are out of this spec's scope, per its Non-goals on
// analytics/reporting surfaces) but all three sections are parsed so the
// credential file's shape matches spec.md §6 exactly.
type JobsStoreConfigMarshall struct {
	JobsDB      *DBSectionMarshall `yaml:"jobs_db"`
	ReportingDB *DBSectionMarshall `yaml:"reporting_db"`
	OdinDB      *DBSectionMarshall `yaml:"odin_db"`
}

var _ Marshalled[*JobsStoreConfig] = &JobsStoreConfigMarshall{}

func (j *JobsStoreConfigMarshall) trySeal(path string) *JobsStoreConfig {
	return &JobsStoreConfig{
		jobsDB:      nonnil(j.JobsDB, path+".jobs_db").trySeal(path + ".jobs_db"),
		reportingDB: j.ReportingDB.trySeal(path + ".reporting_db"),
		odinDB:      j.OdinDB.trySeal(path + ".odin_db"),
	}
}

// JobsStoreConfig is the sealed jobs-store credential configuration.
type JobsStoreConfig struct {
	jobsDB      *DBSection
	reportingDB *DBSection
	odinDB      *DBSection
}

func (c *JobsStoreConfig) JobsDB() *DBSection      { return c.jobsDB }
func (c *JobsStoreConfig) ReportingDB() *DBSection { return c.reportingDB }
func (c *JobsStoreConfig) OdinDB() *DBSection      { return c.odinDB }
