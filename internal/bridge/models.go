package bridge

// Home Assistant MQTT discovery payloads.

type climateConfig struct {
	UniqueID string `json:"unique_id"`
	Name     string `json:"name"`

	Modes            []string `json:"modes"`
	ModeStateTopic   string   `json:"mode_state_topic"`
	ModeCommandTopic string   `json:"mode_command_topic"`

	PresetModes            []string `json:"preset_modes"`
	PresetModeStateTopic   string   `json:"preset_mode_state_topic"`
	PresetModeCommandTopic string   `json:"preset_mode_command_topic"`

	TemperatureStateTopic   string `json:"temperature_state_topic"`
	TemperatureCommandTopic string `json:"temperature_command_topic"`
	CurrentTemperatureTopic string `json:"current_temperature_topic"`

	MinTemp  float64 `json:"min_temp"`
	MaxTemp  float64 `json:"max_temp"`
	TempStep float64 `json:"temp_step"`
}

type switchConfig struct {
	UniqueID     string `json:"unique_id"`
	Name         string `json:"name"`
	StateTopic   string `json:"state_topic"`
	CommandTopic string `json:"command_topic"`
}
