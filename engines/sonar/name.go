package sonar

// EngineName is the name the sonar engine registers under.
const EngineName = "sonar"
