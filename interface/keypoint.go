package iface

import "fmt"

// KeypointName is the closed COCO-17 vocabulary. The numeric value is the
// keypoint's index in a pose model's output.
type KeypointName int

const (
	Nose KeypointName = iota
	LeftEye
	RightEye
	LeftEar
	RightEar
	LeftShoulder
	RightShoulder
	LeftElbow
	RightElbow
	LeftWrist
	RightWrist
	LeftHip
	RightHip
	LeftKnee
	RightKnee
	LeftAnkle
	RightAnkle
)

const KeypointCount = 17

var keypointNames = [KeypointCount]string{
	"nose",
	"left_eye",
	"right_eye",
	"left_ear",
	"right_ear",
	"left_shoulder",
	"right_shoulder",
	"left_elbow",
	"right_elbow",
	"left_wrist",
	"right_wrist",
	"left_hip",
	"right_hip",
	"left_knee",
	"right_knee",
	"left_ankle",
	"right_ankle",
}

// Skeleton lists the limb segments drawn between keypoints.
var Skeleton = [][2]KeypointName{
	{LeftAnkle, LeftKnee}, {LeftKnee, LeftHip},
	{RightAnkle, RightKnee}, {RightKnee, RightHip},
	{LeftHip, RightHip},
	{LeftShoulder, LeftHip}, {RightShoulder, RightHip},
	{LeftShoulder, RightShoulder},
	{LeftShoulder, LeftElbow}, {LeftElbow, LeftWrist},
	{RightShoulder, RightElbow}, {RightElbow, RightWrist},
	{LeftEye, RightEye}, {Nose, LeftEye}, {Nose, RightEye},
	{LeftEye, LeftEar}, {RightEye, RightEar},
}

func (k KeypointName) Valid() bool {
	return k >= 0 && k < KeypointCount
}

func (k KeypointName) String() string {
	if !k.Valid() {
		return fmt.Sprintf("keypoint(%d)", int(k))
	}
	return keypointNames[k]
}

func (k KeypointName) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("invalid keypoint %d", int(k))
	}
	return []byte(keypointNames[k]), nil
}

func (k *KeypointName) UnmarshalText(b []byte) error {
	name, err := ParseKeypointName(string(b))
	if err != nil {
		return err
	}
	*k = name
	return nil
}

func ParseKeypointName(s string) (KeypointName, error) {
	for i, n := range keypointNames {
		if n == s {
			return KeypointName(i), nil
		}
	}
	return 0, fmt.Errorf("unknown keypoint %q", s)
}

type Keypoint struct {
	X          float32 `json:"x"`
	Y          float32 `json:"y"`
	Confidence float32 `json:"confidence"`
}
