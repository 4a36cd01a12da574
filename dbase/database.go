package dbase

import (
	"errors"
	"path/filepath"
	"sort"
	"strings"
)

// Database is a Visual FoxPro database container (.DBC) with its tables.
type Database struct {
	container *Table
	tables    map[string]*Table
}

// OpenDatabase opens a database container and every table it lists.
// Table files are looked up next to the container, underscores in table
// names also match spaces in file names.
func OpenDatabase(config *Config) (*Database, error) {
	if config == nil {
		return nil, newErrorf("dbase-database-open-1", "missing configuration")
	}
	if len(strings.TrimSpace(config.Filename)) == 0 {
		return nil, newErrorf("dbase-database-open-2", "missing filename")
	}
	if !strings.EqualFold(filepath.Ext(config.Filename), string(DBC)) {
		return nil, newErrorf("dbase-database-open-3", "invalid file name: %v", config.Filename)
	}
	debugf("Opening database: %v", config.Filename)
	containerConfig := *config
	containerConfig.IgnoreCase = true
	containerConfig.SkipDeleted = true
	containerConfig.MaxRecords = 0
	container, err := Open(&containerConfig)
	if err != nil {
		return nil, newError("dbase-database-open-4", err)
	}
	db := &Database{container: container, tables: make(map[string]*Table)}
	names, err := containerTables(container)
	if err != nil {
		db.Close()
		return nil, newError("dbase-database-open-5", err)
	}
	for _, name := range names {
		debugf("Found table: %v in database", name)
		tableConfig := *config
		tableConfig.Filename = filepath.Join(filepath.Dir(config.Filename), name+string(DBF))
		table, err := Open(&tableConfig)
		if errors.Is(err, ErrNotFound) && strings.Contains(name, "_") {
			tableConfig.Filename = filepath.Join(filepath.Dir(config.Filename), strings.ReplaceAll(name, "_", " ")+string(DBF))
			table, err = Open(&tableConfig)
		}
		if err != nil {
			db.Close()
			return nil, newError("dbase-database-open-6", err)
		}
		db.tables[name] = table
	}
	return db, nil
}

// containerTables returns the names of all objects of type Table.
func containerTables(container *Table) ([]string, error) {
	typePos := container.ColumnPosByName("OBJECTTYPE")
	namePos := container.ColumnPosByName("OBJECTNAME")
	if typePos < 0 || namePos < 0 {
		return nil, newErrorf("dbase-database-tables-1", "%w: container without OBJECTTYPE/OBJECTNAME", ErrMalformed)
	}
	names := make([]string, 0)
	for row, err := range container.Records() {
		if err != nil {
			return nil, newError("dbase-database-tables-2", err)
		}
		if !strings.EqualFold(ToTrimmedString(row.Value(typePos)), "Table") {
			continue
		}
		name := ToTrimmedString(row.Value(namePos))
		if name == "" {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

// Close closes the container and all tables.
func (db *Database) Close() error {
	var first error
	for _, table := range db.tables {
		if err := table.Close(); err != nil && first == nil {
			first = newError("dbase-database-close-1", err)
		}
	}
	if err := db.container.Close(); err != nil && first == nil {
		first = newError("dbase-database-close-2", err)
	}
	return first
}

// Tables returns all tables of the database keyed by name.
func (db *Database) Tables() map[string]*Table {
	return db.tables
}

// Names returns the sorted table names.
func (db *Database) Names() []string {
	names := make([]string, 0, len(db.tables))
	for name := range db.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Schema returns the columns of every table.
func (db *Database) Schema() map[string][]*Column {
	schema := make(map[string][]*Column)
	for name, table := range db.tables {
		schema[name] = table.Columns()
	}
	return schema
}
