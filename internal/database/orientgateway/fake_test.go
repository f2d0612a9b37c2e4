package orientgateway

import (
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/segmentio/encoding/json"
)

const (
	fakeDatabase = "demo"
	fakeUser     = "root"
	fakePassword = "secret"
)

type fakeRecord struct {
	Migration string `json:"migration"`
	Batch     uint   `json:"batch"`
	At        string `json:"migrated_at"`
}

// fakeOrientDB answers the subset of the OrientDB REST API the gateway uses
type fakeOrientDB struct {
	mu        sync.Mutex
	classes   map[string]bool
	records   []fakeRecord
	locks     map[string]string
	scripts   [][]string
	commands  []string
	failWith  string
	downFor   int
	connected int
}

func newFakeOrientDB() *fakeOrientDB {
	return &fakeOrientDB{
		classes: make(map[string]bool),
		locks:   make(map[string]string),
	}
}

func (f *fakeOrientDB) start() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(f.serveHTTP))
}

func (f *fakeOrientDB) serveHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	user, pass, ok := r.BasicAuth()
	if !ok || user != fakeUser || pass != fakePassword {
		f.fail(w, http.StatusUnauthorized, "401 Unauthorized")
		return
	}

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/connect/"+fakeDatabase:
		f.connected++
		if f.connected <= f.downFor {
			f.fail(w, http.StatusServiceUnavailable, "server is starting")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case r.Method == http.MethodPost && r.URL.Path == "/batch/"+fakeDatabase:
		f.batch(w, r)
	case r.Method == http.MethodPost && r.URL.Path == "/command/"+fakeDatabase+"/sql":
		f.command(w, r)
	default:
		f.fail(w, http.StatusNotFound, "not found "+r.URL.Path)
	}
}

func (f *fakeOrientDB) batch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		f.fail(w, http.StatusBadRequest, err.Error())
		return
	}

	for _, op := range req.Operations {
		if op.Type != "script" || op.Language != "sql" {
			f.fail(w, http.StatusBadRequest, "unsupported operation")
			return
		}

		for _, s := range op.Script {
			if f.failWith != "" && strings.Contains(s, f.failWith) {
				f.fail(w, http.StatusInternalServerError, "OCommandSQLParsingException: "+s)
				return
			}
		}

		f.scripts = append(f.scripts, op.Script)
		for _, s := range op.Script {
			for _, line := range strings.Split(s, ";") {
				f.applySchema(strings.TrimSpace(line))
			}
		}
	}

	f.writeResult(w, []interface{}{})
}

func (f *fakeOrientDB) applySchema(stmt string) {
	fields := strings.Fields(stmt)
	if len(fields) < 3 {
		return
	}

	switch {
	case fields[0] == "CREATE" && fields[1] == "CLASS":
		f.classes[fields[2]] = true
	case fields[0] == "DROP" && fields[1] == "CLASS":
		delete(f.classes, fields[2])
		if fields[2] == "migrations" {
			f.records = nil
		}
	}
}

func (f *fakeOrientDB) command(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Command    string                 `json:"command"`
		Parameters map[string]interface{} `json:"parameters"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		f.fail(w, http.StatusBadRequest, err.Error())
		return
	}

	cmd := req.Command
	f.commands = append(f.commands, cmd)

	switch {
	case strings.Contains(cmd, "metadata:schema"):
		name, _ := req.Parameters["name"].(string)
		result := []interface{}{}
		if f.classes[name] {
			result = append(result, map[string]interface{}{"name": name})
		}
		f.writeResult(w, result)
	case strings.HasPrefix(cmd, "INSERT INTO migrations_lock"):
		name, _ := req.Parameters["name"].(string)
		owner, _ := req.Parameters["owner"].(string)
		if !f.classes["migrations_lock"] {
			f.fail(w, http.StatusInternalServerError, "Class not found: migrations_lock")
			return
		}
		if _, held := f.locks[name]; held {
			f.fail(w, http.StatusConflict, "ORecordDuplicatedException: Cannot index record: found duplicated key '"+name+"'")
			return
		}
		f.locks[name] = owner
		f.writeResult(w, []interface{}{})
	case strings.HasPrefix(cmd, "DELETE FROM migrations_lock"):
		name, _ := req.Parameters["name"].(string)
		owner, _ := req.Parameters["owner"].(string)
		if f.locks[name] == owner {
			delete(f.locks, name)
		}
		f.writeResult(w, []interface{}{})
	case !f.classes["migrations"]:
		f.fail(w, http.StatusInternalServerError, "OCommandExecutionException: Class not found: migrations")
	case strings.HasPrefix(cmd, "SELECT max(batch)"):
		var batch interface{}
		for _, rec := range f.records {
			if b, ok := batch.(uint); !ok || rec.Batch > b {
				batch = rec.Batch
			}
		}
		f.writeResult(w, []interface{}{map[string]interface{}{"batch": batch}})
	case strings.HasPrefix(cmd, "INSERT INTO migrations"):
		key, _ := req.Parameters["migration"].(string)
		batch, _ := req.Parameters["batch"].(float64)
		for _, rec := range f.records {
			if rec.Migration == key {
				f.fail(w, http.StatusConflict, "ORecordDuplicatedException: found duplicated key '"+key+"'")
				return
			}
		}
		f.records = append(f.records, fakeRecord{Migration: key, Batch: uint(batch), At: "2024-01-01 10:00:00"})
		f.writeResult(w, []interface{}{})
	case strings.HasPrefix(cmd, "DELETE FROM migrations"):
		key, _ := req.Parameters["migration"].(string)
		for i := range f.records {
			if f.records[i].Migration == key {
				f.records = append(f.records[:i], f.records[i+1:]...)
				break
			}
		}
		f.writeResult(w, []interface{}{})
	case strings.Contains(cmd, "WHERE batch = :batch"):
		batch, _ := req.Parameters["batch"].(float64)
		var result []fakeRecord
		for _, rec := range f.sorted(true) {
			if rec.Batch == uint(batch) {
				result = append(result, rec)
			}
		}
		f.writeResult(w, result)
	case strings.Contains(cmd, "ORDER BY batch DESC"):
		limit, _ := strconv.Atoi(cmd[strings.LastIndex(cmd, " ")+1:])
		result := f.sorted(true)
		if len(result) > limit {
			result = result[:limit]
		}
		f.writeResult(w, result)
	case strings.Contains(cmd, "ORDER BY batch ASC"):
		f.writeResult(w, f.sorted(false))
	default:
		f.fail(w, http.StatusBadRequest, "unexpected command "+cmd)
	}
}

func (f *fakeOrientDB) sorted(desc bool) []fakeRecord {
	result := make([]fakeRecord, len(f.records))
	copy(result, f.records)
	sort.Slice(result, func(i, j int) bool {
		less := result[i].Batch < result[j].Batch ||
			(result[i].Batch == result[j].Batch && result[i].Migration < result[j].Migration)
		if desc {
			return !less
		}
		return less
	})
	return result
}

func (f *fakeOrientDB) writeResult(w http.ResponseWriter, result interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"result": result})
}

func (f *fakeOrientDB) fail(w http.ResponseWriter, status int, content string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"errors": []map[string]interface{}{
			{"code": status, "reason": status, "content": content},
		},
	})
}

func (f *fakeOrientDB) lockHolder(name string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	owner, ok := f.locks[name]
	return owner, ok
}

func (f *fakeOrientDB) executedScripts() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.scripts...)
}
