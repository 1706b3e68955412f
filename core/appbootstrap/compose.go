package appbootstrap

import (
	"database/sql"

	"skimo-var/api"
	"skimo-var/config"
	"skimo-var/core/authz"
	"skimo-var/core/broadcast"
	"skimo-var/core/incidents"
	"skimo-var/core/reaper"
	"skimo-var/core/reports"
	"skimo-var/core/roster"
	"skimo-var/core/store"
	"skimo-var/core/utils"
)

type runtimeComposition struct {
	serverDeps api.ServerDeps
	workers    []api.BackgroundWorker
}

func composeRuntime(cfg *config.AppConfig, db *sql.DB, logger *utils.Logger) (*runtimeComposition, error) {
	driver := cfg.DBDriver
	reportsStore := store.NewReportsStore(db, driver)
	incidentsStore := store.NewIncidentsStore(db, driver)
	rosterStore := store.NewRosterStore(db, driver)

	az, err := authz.NewAuthorizer()
	if err != nil {
		return nil, err
	}
	keys, err := api.LoadKeyring(cfg.Auth.KeysPath)
	if err != nil {
		return nil, err
	}

	hub := broadcast.NewHub(cfg.Broadcast.SubscriberBuffer, logger)
	reportsSvc := reports.NewService(cfg, reportsStore, az, hub, logger)
	incidentsSvc := incidents.NewService(incidentsStore, reportsStore, az, hub, logger)
	rosterLookup := roster.NewLookup(rosterStore)
	staleness := reaper.New(cfg.Reaper, reportsStore, hub, logger)

	return &runtimeComposition{
		serverDeps: api.ServerDeps{
			ReportsSvc:   reportsSvc,
			IncidentsSvc: incidentsSvc,
			RosterLookup: rosterLookup,
			Hub:          hub,
			Keys:         keys,
			Authz:        az,
		},
		workers: []api.BackgroundWorker{staleness},
	}, nil
}
