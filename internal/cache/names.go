package cache

// Bucket naming follows the deployed worker's convention: the app name and
// version are baked into the static and dynamic cache names so a new
// deploy rolls over to fresh buckets, while pinned offline videos live in
// an unversioned bucket that survives upgrades.

func StaticBucketName(app, version string) string {
	return app + "-static-" + version
}

func DynamicBucketName(app, version string) string {
	return app + "-dynamic-" + version
}

func OfflineVideosBucketName(app string) string {
	return app + "-offline-videos"
}

func OfflineVideosPrefix(app string) string {
	return app + "-offline-"
}
