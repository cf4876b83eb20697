package capture

// PickRecordingTypeForTest exposes pickRecordingType to external tests.
var PickRecordingTypeForTest = pickRecordingType
