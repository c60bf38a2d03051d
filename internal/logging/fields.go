package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// StowageFields 提供制品类型与包标识字段，供 fetch/ls 日志复用。
func StowageFields(kind, project, version string) logrus.Fields {
	fields := logrus.Fields{"type": kind}
	if project != "" {
		fields["project"] = project
	}
	if version != "" {
		fields["version"] = version
	}
	return fields
}
