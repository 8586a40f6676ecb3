// evse-gateway 通过蓝牙连接充电桩并桥接到 MQTT。
//
// 完成登录握手并维持会话，把解码后的遥测与充电事件发布到 MQTT，
// 同时把命令主题上的控制指令转发给充电桩。
//
// 用法:
//
//	evse-gateway run --address AA:BB:CC:DD:EE:FF [flags]
//	evse-gateway scan
//	evse-gateway version
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd(newBLETransport).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
