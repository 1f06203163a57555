package wizard

import (
	"context"

	"clip-wizard-server/modules/common/database"
	"clip-wizard-server/modules/pipeline"
)

// AssemblyRecorder archives assembled sessions. *database.Client implements it.
type AssemblyRecorder interface {
	InsertAssembly(ctx context.Context, rec database.AssemblyRecord) error
	ListAssemblies(ctx context.Context, sessionID string) ([]database.AssemblyRecord, error)
}

// assemblyRecord converts an assembled state and its approved videos into an archive row
func assemblyRecord(sessionID string, st pipeline.State, approved []pipeline.GeneratedVideo) database.AssemblyRecord {
	videos := make([]database.AssemblyVideo, len(approved))
	for i, v := range approved {
		videos[i] = database.AssemblyVideo{
			ID:       v.ID,
			ClipID:   v.ClipID,
			ClipText: v.ClipText,
			VideoURL: v.VideoURL,
		}
	}
	return database.AssemblyRecord{
		SessionID: sessionID,
		Concept:   st.Concept,
		ClipCount: len(videos),
		Videos:    videos,
	}
}
