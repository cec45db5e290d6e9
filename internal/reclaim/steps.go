package reclaim

import (
	"dockreclaim/internal/docker"
	"dockreclaim/internal/domain"
)

const (
	StepSystemPrune = "system-prune"
	StepImagePrune  = "image-prune"
	StepVolumePrune = "volume-prune"
	StepDiskUsage   = "disk-usage"

	AnnounceSystemPrune = "Removing stopped containers, unused networks, dangling images and build cache"
	AnnounceImagePrune  = "Removing unused images"
	AnnounceVolumePrune = "Removing unused volumes"
	AnnounceDiskUsage   = "Current disk usage"
)

func DefaultSteps(dm *docker.Manager, dfBinary string) []domain.Step {
	if dfBinary == "" {
		dfBinary = "df"
	}

	return []domain.Step{
		{
			Name:         StepSystemPrune,
			Announcement: AnnounceSystemPrune,
			Binary:       dm.Binary(),
			Args:         dm.SystemPruneArgs(),
			Output:       domain.OutputDiscard,
		},
		{
			Name:         StepImagePrune,
			Announcement: AnnounceImagePrune,
			Binary:       dm.Binary(),
			Args:         dm.ImagePruneArgs(),
			Output:       domain.OutputDiscard,
		},
		{
			Name:         StepVolumePrune,
			Announcement: AnnounceVolumePrune,
			Binary:       dm.Binary(),
			Args:         dm.VolumePruneArgs(),
			Output:       domain.OutputDiscard,
		},
		{
			Name:         StepDiskUsage,
			Announcement: AnnounceDiskUsage,
			Binary:       dfBinary,
			Args:         []string{"-h"},
			Output:       domain.OutputForward,
		},
	}
}
