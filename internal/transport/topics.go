package transport

// Topic naming. Input streams are published under the robot's prefix;
// everything the observer emits lives under the process-name prefix, the
// same convention the original port layout used.

func EncoderTopic(robot, chain string) string { return robot + "/" + chain + "/encoders" }
func FTTopic(robot, limb string) string       { return robot + "/" + limb + "/ft" }
func RawInertialTopic(robot string) string    { return robot + "/inertial" }

func FilteredInertialTopic(name string) string { return name + "/inertial/filtered" }
func TorqueTopic(name, limb string) string     { return name + "/" + limb + "/torques" }
func TimingTopic(name string) string           { return name + "/performance/times" }
func FTReadTimingTopic(name string) string     { return name + "/performance/ftread" }
func ComparisonTopic(name string) string       { return name + "/performance/fterr" }
func ModeTopic(name string) string             { return name + "/control/mode" }
