package admin

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/go-chi/chi/v5"

	"github.com/vango-dev/nettables/pkg/protocol"
	"github.com/vango-dev/nettables/pkg/store"
)

// ContentTypeCBOR selects CBOR responses when present in Accept.
const ContentTypeCBOR = "application/cbor"

// maxBodyBytes bounds PUT bodies. Names and strings are limited to
// 64 KiB on the wire, so anything larger cannot be sent anyway.
const maxBodyBytes = 1 << 20

var cborEnc cbor.EncMode

func init() {
	var err error
	cborEnc, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("admin: CBOR encoder initialization failed: " + err.Error())
	}
}

// EntryView is the HTTP rendering of a store entry.
type EntryView struct {
	Name       string `json:"name" cbor:"name"`
	Type       string `json:"type" cbor:"type"`
	Value      any    `json:"value" cbor:"value"`
	Persistent bool   `json:"persistent" cbor:"persistent"`
	LastChange int64  `json:"last_change" cbor:"last_change"`
}

func viewOf(e store.Entry) EntryView {
	return EntryView{
		Name:       e.Name,
		Type:       e.Type().String(),
		Value:      e.Value.Interface(),
		Persistent: e.Persistent(),
		LastChange: e.LastChange,
	}
}

// Health is the /healthz body.
type Health struct {
	Status   string `json:"status" cbor:"status"`
	Identity string `json:"identity,omitempty" cbor:"identity,omitempty"`
	Entries  int    `json:"entries" cbor:"entries"`
	Sessions int    `json:"sessions" cbor:"sessions"`
}

type errorBody struct {
	Error string `json:"error" cbor:"error"`
}

// putRequest is the PUT /entries/* body. Type is optional; without it
// the type is inferred from the JSON value.
type putRequest struct {
	Type       string          `json:"type"`
	Value      json.RawMessage `json:"value"`
	Persistent *bool           `json:"persistent"`
}

func wantsCBOR(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), ContentTypeCBOR)
}

func (a *Admin) render(w http.ResponseWriter, r *http.Request, status int, v any) {
	if wantsCBOR(r) {
		data, err := cborEnc.Marshal(v)
		if err != nil {
			a.logger.Error("cbor encode failed", "error", err)
			http.Error(w, "encode failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", ContentTypeCBOR)
		w.WriteHeader(status)
		w.Write(data)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Debug("json encode failed", "error", err)
	}
}

func (a *Admin) fail(w http.ResponseWriter, r *http.Request, status int, err error) {
	a.render(w, r, status, errorBody{Error: err.Error()})
}

func (a *Admin) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := Health{Status: "ok", Entries: a.store.Len()}
	if a.server != nil {
		h.Identity = a.server.Identity()
		h.Sessions = len(a.server.Sessions())
	}
	a.render(w, r, http.StatusOK, h)
}

func (a *Admin) handleListEntries(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")
	views := []EntryView{}
	for _, e := range a.store.List() {
		if prefix != "" && !strings.HasPrefix(e.Name, prefix) {
			continue
		}
		views = append(views, viewOf(e))
	}
	a.render(w, r, http.StatusOK, views)
}

// entryName maps /entries/<path> to an entry name. Names conventionally
// start with "/", which the route pattern strips, so "/<path>" is tried
// first and the bare path second.
func (a *Admin) entryName(r *http.Request) (string, bool) {
	path := chi.URLParam(r, "*")
	if path == "" {
		return "", false
	}
	if _, ok := a.store.Get("/" + path); ok {
		return "/" + path, true
	}
	if _, ok := a.store.Get(path); ok {
		return path, true
	}
	return "/" + path, false
}

func (a *Admin) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	name, ok := a.entryName(r)
	if !ok {
		a.fail(w, r, http.StatusNotFound, store.ErrNotFound)
		return
	}
	e, ok := a.store.Get(name)
	if !ok {
		a.fail(w, r, http.StatusNotFound, store.ErrNotFound)
		return
	}
	a.render(w, r, http.StatusOK, viewOf(e))
}

func (a *Admin) handlePutEntry(w http.ResponseWriter, r *http.Request) {
	name, _ := a.entryName(r)
	if name == "/" || name == "" {
		a.fail(w, r, http.StatusBadRequest, store.ErrEmptyName)
		return
	}

	var req putRequest
	body := io.LimitReader(r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		a.fail(w, r, http.StatusBadRequest, err)
		return
	}

	e, err := a.applyPut(name, req)
	switch {
	case errors.Is(err, store.ErrTypeMismatch):
		a.fail(w, r, http.StatusConflict, err)
		return
	case errors.Is(err, store.ErrNotFound):
		a.fail(w, r, http.StatusNotFound, err)
		return
	case err != nil:
		a.fail(w, r, http.StatusBadRequest, err)
		return
	}
	a.render(w, r, http.StatusOK, viewOf(e))
}

func (a *Admin) applyPut(name string, req putRequest) (store.Entry, error) {
	var value protocol.Value
	if len(req.Value) > 0 {
		v, err := decodeValue(req.Type, req.Value)
		if err != nil {
			return store.Entry{}, err
		}
		value = v
	}

	var flags protocol.EntryFlags
	if req.Persistent != nil && *req.Persistent {
		flags = protocol.FlagPersistent
	}

	if len(req.Value) == 0 {
		if req.Persistent == nil {
			return store.Entry{}, errors.New("admin: body needs value or persistent")
		}
		if err := a.store.SetFlags(name, flags, store.Local); err != nil {
			return store.Entry{}, err
		}
		e, _ := a.store.Get(name)
		return e, nil
	}

	if req.Persistent == nil {
		if cur, ok := a.store.Get(name); ok {
			flags = cur.Flags
		}
	}
	return a.store.CreateOrUpdate(name, value.Type, value, flags, store.Local)
}

// decodeValue converts a JSON value to a protocol value. With an
// explicit type, raw and rpc take base64 strings and empty arrays keep
// the requested element type.
func decodeValue(typ string, raw json.RawMessage) (protocol.Value, error) {
	if typ == "" {
		var x any
		if err := json.Unmarshal(raw, &x); err != nil {
			return protocol.Value{}, err
		}
		return protocol.ValueOf(x)
	}

	t, err := protocol.ParseValueType(typ)
	if err != nil {
		return protocol.Value{}, err
	}
	switch t {
	case protocol.TypeBoolean:
		var b bool
		err = json.Unmarshal(raw, &b)
		return protocol.BooleanValue(b), err
	case protocol.TypeDouble:
		var f float64
		err = json.Unmarshal(raw, &f)
		return protocol.DoubleValue(f), err
	case protocol.TypeString:
		var s string
		err = json.Unmarshal(raw, &s)
		return protocol.StringValue(s), err
	case protocol.TypeRaw:
		var b []byte
		err = json.Unmarshal(raw, &b)
		return protocol.RawValue(b), err
	case protocol.TypeRPC:
		var b []byte
		err = json.Unmarshal(raw, &b)
		return protocol.RPCValue(b), err
	case protocol.TypeBooleanArray:
		b := []bool{}
		err = json.Unmarshal(raw, &b)
		return protocol.BooleanArrayValue(b), err
	case protocol.TypeDoubleArray:
		f := []float64{}
		err = json.Unmarshal(raw, &f)
		return protocol.DoubleArrayValue(f), err
	case protocol.TypeStringArray:
		s := []string{}
		err = json.Unmarshal(raw, &s)
		return protocol.StringArrayValue(s), err
	}
	return protocol.Value{}, protocol.ErrUnsupportedValue
}

func (a *Admin) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	name, ok := a.entryName(r)
	if !ok || !a.store.Delete(name, store.Local) {
		a.fail(w, r, http.StatusNotFound, store.ErrNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *Admin) handleSessions(w http.ResponseWriter, r *http.Request) {
	sessions := a.server.Sessions()
	if sessions == nil {
		a.render(w, r, http.StatusOK, []struct{}{})
		return
	}
	a.render(w, r, http.StatusOK, sessions)
}
