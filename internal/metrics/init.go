package metrics

// InitializeMetrics pre-populates the expected label combinations so every
// series is exported from the first scrape. Call once at startup.
func InitializeMetrics() {
	for _, op := range []string{"stat", "open"} {
		FilesystemRetryAttempts.WithLabelValues(op)
		FilesystemRetrySuccess.WithLabelValues(op)
		FilesystemRetryFailures.WithLabelValues(op)
		FilesystemStaleErrors.WithLabelValues(op)
		FilesystemRetryDuration.WithLabelValues(op)
	}

	for _, kind := range []string{"still", "animated", "video", "raw", "unknown"} {
		for _, status := range []string{"success", "unavailable", "unsupported", "failed"} {
			GeneratorRunsTotal.WithLabelValues(kind, status)
		}
		GeneratorDuration.WithLabelValues(kind)
	}

	for _, tool := range []string{"ffmpeg", "ffprobe", "vips"} {
		GeneratorExternalToolDuration.WithLabelValues(tool)
	}

	for _, op := range []string{"initialize_schema", "get_or_create_folder", "find_folder",
		"media_exists", "insert_if_absent", "remove_by_path", "reset", "list_folders",
		"list_subfolders", "list_folder_media", "get_media_item", "catalog_stats"} {
		DBQueryTotal.WithLabelValues(op, "success")
		DBQueryTotal.WithLabelValues(op, "error")
		DBQueryDuration.WithLabelValues(op)
	}

	for _, outcome := range []string{"commit", "rollback"} {
		DBTransactionDuration.WithLabelValues(outcome)
	}

	for _, table := range []string{"folders", "media_items"} {
		DBConflictsResolved.WithLabelValues(table)
	}

	for _, status := range []string{"completed", "cancelled", "error"} {
		ScanRunsTotal.WithLabelValues(status)
	}

	for _, c := range []string{"total", "processed", "succeeded", "failed", "existing", "skipped"} {
		ScanProgress.WithLabelValues(c)
	}

	for _, reason := range []string{"unreadable", "unresolvable", "symlink_loop"} {
		ScanDirectoriesSkipped.WithLabelValues(reason)
	}

	for _, source := range []string{"scan", "watch"} {
		for _, outcome := range []string{"inserted", "existing", "failed"} {
			IngestItemsTotal.WithLabelValues(source, outcome)
		}
	}

	for _, status := range []string{"removed", "missing", "error"} {
		OrphanFilesRemoved.WithLabelValues(status)
	}

	for _, ev := range []string{"create", "write", "remove", "rename", "chmod"} {
		WatcherEventsTotal.WithLabelValues(ev)
	}

	for _, reason := range []string{"vanished", "no_folder", "folder_error"} {
		WatcherDropped.WithLabelValues(reason)
	}

	for _, mt := range []string{"still", "animated", "video", "raw"} {
		CatalogMediaTotal.WithLabelValues(mt)
	}
}
