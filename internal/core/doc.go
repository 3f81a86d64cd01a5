// Package core is the batch ingestion engine for instrument exports.
//
// It contains all domain logic independent of any transport or database.
// HTTP handlers, the CLI, the watch scheduler and tests all drive it through
// [Service].
//
// # Adapter Registry
//
// Instruments are registered at init time using [Register]. Each
// [AdapterDefinition] declares which inbox files it accepts and how to turn
// one file into [NormalizedRecord] values:
//
//	core.Register(core.AdapterDefinition{
//	    Info:            core.AdapterInfo{Key: "cesds", Group: "Analytical", Label: "CE-SDS", Table: "cesds_peaks"},
//	    Extensions:      []string{".csv"},
//	    ExcludePatterns: []string{"_ch2", "_current"},
//	    Adapter:         parser,
//	})
//
// # Job Lifecycle
//
//  1. A trigger calls [Service.Start] with an inbox, an archive and an adapter key
//  2. [Enumerate] lists pending files once; later arrivals wait for the next run
//  3. A background worker parses, persists and archives one file at a time
//  4. Pollers read [Snapshot] values through [Service.Poll] or [Service.Subscribe]
//  5. [Service.Cancel] stops the run at the next file boundary
//
// A file is moved to the archive only after its records committed, so a crash
// at any point is repaired by simply running the job again.
//
// # Error Handling
//
// Per-file failures ([ParseError], [PersistError], [MoveError]) are recorded
// in the snapshot and, under [PolicySkip], the run continues. Only a
// [DiscoveryError] prevents a job from being created. Technical errors are
// mapped to user-facing messages with support codes by [MapError].
package core
