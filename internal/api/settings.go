package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/bher20/powerdash/internal/cron"
	"github.com/bher20/powerdash/internal/storage"
)

type settingRequest struct {
	Value string `json:"value"`
}

// settingValidators lists the settings that may be changed at run time.
var settingValidators = map[string]func(string) error{
	storage.SettingRefreshInterval: func(v string) error {
		_, err := cron.ParseInterval(v)
		return err
	},
	storage.SettingDailyBudget: func(v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 {
			return errInvalidBudget
		}
		return nil
	},
}

var errInvalidBudget = errors.New("daily_budget must be a non-negative number")

func (s *server) getSettings(w http.ResponseWriter, r *http.Request) {
	out := make(map[string]string, len(settingValidators))
	for key := range settingValidators {
		v, err := s.Storage.GetSetting(r.Context(), key)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		out[key] = v
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *server) putSetting(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	validate, ok := settingValidators[key]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown setting: "+key)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 4<<10))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}
	var req settingRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "decode setting: "+err.Error())
		return
	}
	if req.Value != "" {
		if err := validate(req.Value); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if err := s.Storage.SetSetting(r.Context(), key, req.Value); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.Logger.Info("setting updated", zap.String("key", key), zap.String("value", req.Value))
	writeJSON(w, http.StatusOK, map[string]string{key: req.Value})
}
